package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Klingon-tech/stbtc-signer/config"
	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	klog "github.com/Klingon-tech/stbtc-signer/internal/log"
	"github.com/Klingon-tech/stbtc-signer/internal/storage"
	"github.com/Klingon-tech/stbtc-signer/internal/wallet"
	"github.com/Klingon-tech/stbtc-signer/internal/withdraw"
	"github.com/Klingon-tech/stbtc-signer/pkg/address"
	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPath     = "m/84'/0'/0'/0/0"
	// BIP-84 test vector for the first receive address of testMnemonic.
	testAddress = "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"
	testAmount  = 150000000000000000
)

type confirmFunc func(amount, addr string) (bool, error)

func (f confirmFunc) ConfirmWithdraw(_ context.Context, amount, addr string) (bool, error) {
	return f(amount, addr)
}

// testEnv holds all components for an RPC test.
type testEnv struct {
	server *Server
	store  *chunk.Store
	keys   *wallet.KeyChain
	params *config.Params
	url    string
	root   types.Hash
	count  uint64
}

// withdrawalData returns a twelve-chunk SafeTx payload whose redeemer
// script is script.
func withdrawalData(script []byte) []byte {
	data := make([]byte, 12*chunk.Size)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	c := func(i int) []byte { return data[i*chunk.Size : (i+1)*chunk.Size] }
	for j := 0; j < 12; j++ {
		c(7)[j] = 0
	}
	binary.BigEndian.PutUint64(c(5)[56:64], testAmount)
	binary.BigEndian.PutUint16(c(10)[30:32], uint16(len(script)+1))
	c(10)[32] = byte(len(script))
	copy(c(10)[33:], script)
	return data
}

func setupTestEnv(t *testing.T, confirm confirmFunc, rpcCfg ...config.RPCConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	params, err := config.ParamsFor(config.Mainnet)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	seed, err := wallet.SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	keys, err := wallet.NewKeyChain(seed)
	if err != nil {
		t.Fatalf("key chain: %v", err)
	}

	codec := address.NewCodec(params.Bitcoin)
	script, err := codec.PayToAddress(testAddress)
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	store := chunk.NewStore(storage.NewMemory())
	root, count, err := store.Put(withdrawalData(script))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	srv := New("127.0.0.1:0", params, store, rpcCfg...)
	if confirm != nil {
		h, err := withdraw.NewHandler(withdraw.Config{
			Source:    chunk.NewVerifier(store, "local"),
			Keys:      keys,
			Codec:     codec,
			Confirmer: confirm,
			ChainID:   params.ChainID,
		})
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		srv.SetSigner(h, keys)
	}
	srv.EnableMetrics()
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server: srv,
		store:  store,
		keys:   keys,
		params: params,
		url:    fmt.Sprintf("http://%s/", srv.Addr()),
		root:   root,
		count:  count,
	}
}

func approve(string, string) (bool, error) { return true, nil }

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// result re-decodes a successful response's result into target.
func result(t *testing.T, resp Response, target interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_ChunkPutInfoList(t *testing.T) {
	env := setupTestEnv(t, nil)

	var put PayloadResult
	result(t, rpcCall(t, env.url, "chunk_put", PutParam{Data: "0x" + strings.Repeat("ab", 100)}), &put)
	if put.Count != 2 {
		t.Errorf("count = %d, want 2", put.Count)
	}

	var info PayloadResult
	result(t, rpcCall(t, env.url, "chunk_info", RootParam{Root: put.Root}), &info)
	if info != put {
		t.Errorf("info = %+v, want %+v", info, put)
	}

	var list []PayloadResult
	result(t, rpcCall(t, env.url, "chunk_list", nil), &list)
	if len(list) != 2 {
		t.Fatalf("list has %d payloads, want 2", len(list))
	}

	var deleted bool
	result(t, rpcCall(t, env.url, "chunk_delete", RootParam{Root: put.Root}), &deleted)
	if !deleted {
		t.Error("chunk_delete returned false")
	}
	resp := rpcCall(t, env.url, "chunk_info", RootParam{Root: put.Root})
	if resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Errorf("chunk_info after delete = %+v, want CodeNotFound", resp.Error)
	}
}

func TestRPC_ChunkGetLeaf(t *testing.T) {
	env := setupTestEnv(t, nil)

	var leaf LeafResult
	result(t, rpcCall(t, env.url, "chunk_getLeaf", LeafParam{Root: env.root.String(), Count: env.count, Index: 5}), &leaf)

	want, err := env.store.Leaf(env.root, 5)
	if err != nil {
		t.Fatalf("store leaf: %v", err)
	}
	if leaf.Data != hex.EncodeToString(want.Data) {
		t.Errorf("data = %s, want %x", leaf.Data, want.Data)
	}
	if len(leaf.Proof) != len(want.Proof) {
		t.Fatalf("proof has %d hashes, want %d", len(leaf.Proof), len(want.Proof))
	}
	for i := range want.Proof {
		if leaf.Proof[i] != want.Proof[i].String() {
			t.Errorf("proof[%d] = %s, want %s", i, leaf.Proof[i], want.Proof[i])
		}
	}
}

func TestRPC_ChunkErrors(t *testing.T) {
	env := setupTestEnv(t, nil)
	root := env.root.String()

	tests := []struct {
		name   string
		method string
		params interface{}
		code   int
	}{
		{"no params", "chunk_info", nil, CodeInvalidParams},
		{"bad root", "chunk_info", RootParam{Root: "zz"}, CodeInvalidParams},
		{"short root", "chunk_info", RootParam{Root: "abcd"}, CodeInvalidParams},
		{"unknown root", "chunk_info", RootParam{Root: strings.Repeat("11", 32)}, CodeNotFound},
		{"count mismatch", "chunk_getLeaf", LeafParam{Root: root, Count: env.count + 1}, CodeInvalidParams},
		{"index past end", "chunk_getLeaf", LeafParam{Root: root, Count: env.count, Index: env.count}, CodeInvalidParams},
		{"empty data", "chunk_put", PutParam{}, CodeInvalidParams},
		{"bad data", "chunk_put", PutParam{Data: "xyz"}, CodeInvalidParams},
		{"unknown method", "chunk_nope", nil, CodeMethodNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpcCall(t, env.url, tt.method, tt.params)
			if resp.Error == nil {
				t.Fatalf("expected error, got %v", resp.Result)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %d, want %d (%s)", resp.Error.Code, tt.code, resp.Error.Message)
			}
		})
	}
}

func TestRPC_WithdrawSign(t *testing.T) {
	var shown []string
	env := setupTestEnv(t, func(amount, addr string) (bool, error) {
		shown = append(shown, amount, addr)
		return true, nil
	})

	var decoded DecodeResult
	result(t, rpcCall(t, env.url, "withdraw_decode", DecodeParam{Root: env.root.String()}), &decoded)
	if decoded.Amount != "stBTC 0.15" {
		t.Errorf("decoded amount = %q", decoded.Amount)
	}

	var signed SignResult
	result(t, rpcCall(t, env.url, "withdraw_sign", SignParam{
		Path:  testPath,
		Root:  env.root.String(),
		Count: env.count,
	}), &signed)

	if signed.Status != "9000" || signed.Class != "ok" {
		t.Fatalf("status = %s/%s, want 9000/ok", signed.Status, signed.Class)
	}
	if len(shown) != 2 || shown[0] != "stBTC 0.15" || shown[1] != testAddress {
		t.Errorf("confirmation showed %q", shown)
	}

	sig, err := hex.DecodeString(signed.Signature)
	if err != nil || len(sig) != withdraw.SignatureSize {
		t.Fatalf("signature %q: %v", signed.Signature, err)
	}
	msg, err := withdraw.MessageDigest([]byte(decoded.Digest))
	if err != nil {
		t.Fatalf("message digest: %v", err)
	}
	pub, err := crypto.RecoverCompact(sig, msg[:])
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	path, _ := types.ParseKeyPath(testPath)
	want, _ := env.keys.DerivePubKey(path)
	if !bytes.Equal(pub, want) {
		t.Errorf("signature recovers to %x, want %x", pub, want)
	}
}

func TestRPC_WithdrawSign_RawPayload(t *testing.T) {
	env := setupTestEnv(t, approve)

	path, _ := types.ParseKeyPath(testPath)
	wr := &withdraw.Request{Path: path, ChunkCount: env.count, Root: env.root}
	payload, err := wr.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var signed SignResult
	result(t, rpcCall(t, env.url, "withdraw_sign", SignParam{Payload: hex.EncodeToString(payload)}), &signed)
	if signed.Status != "9000" {
		t.Errorf("status = %s (%s), want 9000", signed.Status, signed.Class)
	}
}

func TestRPC_WithdrawSign_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		confirm confirmFunc
		params  func(env *testEnv) SignParam
		status  string
		class   string
	}{
		{
			name:    "user denies",
			confirm: func(string, string) (bool, error) { return false, nil },
			params: func(env *testEnv) SignParam {
				return SignParam{Path: testPath, Root: env.root.String(), Count: env.count}
			},
			status: "6985",
			class:  "user_denied",
		},
		{
			name:    "other key",
			confirm: approve,
			params: func(env *testEnv) SignParam {
				return SignParam{Path: "m/84'/0'/0'/0/1", Root: env.root.String(), Count: env.count}
			},
			status: "6985",
			class:  "address_mismatch",
		},
		{
			name:    "truncated payload",
			confirm: approve,
			params: func(*testEnv) SignParam {
				return SignParam{Payload: "05"}
			},
			status: "6700",
			class:  "malformed_input",
		},
		{
			name:    "unknown root",
			confirm: approve,
			params: func(env *testEnv) SignParam {
				return SignParam{Path: testPath, Root: strings.Repeat("22", 32), Count: env.count}
			},
			status: "B007",
			class:  "transport_failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, tt.confirm)
			var signed SignResult
			result(t, rpcCall(t, env.url, "withdraw_sign", tt.params(env)), &signed)
			if signed.Status != tt.status || signed.Class != tt.class {
				t.Errorf("got %s/%s, want %s/%s", signed.Status, signed.Class, tt.status, tt.class)
			}
			if signed.Signature != "" {
				t.Errorf("rejected request carries signature %s", signed.Signature)
			}
		})
	}
}

func TestRPC_SigningDisabled(t *testing.T) {
	env := setupTestEnv(t, nil)

	for _, method := range []string{"withdraw_sign", "signer_getAddress"} {
		resp := rpcCall(t, env.url, method, SignParam{Payload: "00"})
		if resp.Error == nil || resp.Error.Code != CodeNotFound {
			t.Errorf("%s without signer: error = %+v, want CodeNotFound", method, resp.Error)
		}
	}

	var info SignerInfoResult
	result(t, rpcCall(t, env.url, "signer_info", nil), &info)
	if info.Signing || info.Fingerprint != "" {
		t.Errorf("info = %+v, want signing disabled", info)
	}
	if info.ChainID != config.ChainIDEthereum || info.Network != "mainnet" || info.Payloads != 1 {
		t.Errorf("info = %+v", info)
	}
}

func TestRPC_SignerGetAddress(t *testing.T) {
	env := setupTestEnv(t, approve)

	tests := []struct {
		name   string
		params AddressParam
		addr   string
		path   string
	}{
		{"explicit path", AddressParam{Path: testPath, Type: "p2wpkh"}, testAddress, testPath},
		{"default path", AddressParam{Type: "p2wpkh"}, testAddress, testPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got AddressResult
			result(t, rpcCall(t, env.url, "signer_getAddress", tt.params), &got)
			if got.Address != tt.addr || got.Path != tt.path {
				t.Errorf("got %s at %s, want %s at %s", got.Address, got.Path, tt.addr, tt.path)
			}
			if len(got.PubKey) != 66 {
				t.Errorf("pubkey %q is not a compressed key", got.PubKey)
			}
		})
	}

	resp := rpcCall(t, env.url, "signer_getAddress", AddressParam{Type: "p2wsh"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("p2wsh for a single key: error = %+v, want CodeInvalidParams", resp.Error)
	}

	var info SignerInfoResult
	result(t, rpcCall(t, env.url, "signer_info", nil), &info)
	if !info.Signing || info.Fingerprint != env.keys.Fingerprint() {
		t.Errorf("info = %+v", info)
	}
}

func TestRPC_WithdrawDecode_TooShort(t *testing.T) {
	env := setupTestEnv(t, nil)

	var put PayloadResult
	result(t, rpcCall(t, env.url, "chunk_put", PutParam{Data: "01"}), &put)
	resp := rpcCall(t, env.url, "withdraw_decode", DecodeParam{Root: put.Root})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("decode of one chunk: error = %+v, want CodeInvalidParams", resp.Error)
	}
}

func TestRPC_NetDisabled(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp := rpcCall(t, env.url, "net_getNodeInfo", nil)
	if resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Errorf("error = %+v, want CodeNotFound", resp.Error)
	}
}

func TestRPC_Metrics(t *testing.T) {
	env := setupTestEnv(t, nil)
	rpcCall(t, env.url, "chunk_getLeaf", LeafParam{Root: env.root.String(), Count: env.count})

	resp, err := http.Get(env.url + "metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "stbtc_signer_chunks_served_total") {
		t.Errorf("metrics lack served counter")
	}
}

// --- Protocol ---

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp, err := http.Post(env.url, "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeParseError {
		t.Errorf("error = %+v, want CodeParseError", rpcResp.Error)
	}
}

func TestRPC_WrongVersion(t *testing.T) {
	env := setupTestEnv(t, nil)
	body, _ := json.Marshal(Request{JSONRPC: "1.0", Method: "signer_info", ID: 1})
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error = %+v, want CodeInvalidRequest", rpcResp.Error)
	}
}

func TestRPC_GetNotAllowed(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error = %+v, want CodeInvalidRequest", rpcResp.Error)
	}
}

func TestRPC_BodyTooLarge(t *testing.T) {
	env := setupTestEnv(t, nil)
	big := `{"jsonrpc":"2.0","method":"chunk_put","params":{"data":"` + strings.Repeat("a", maxBodySize) + `"},"id":1}`
	resp, err := http.Post(env.url, "application/json", strings.NewReader(big))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error = %+v, want CodeInvalidRequest", rpcResp.Error)
	}
}

// --- IP filter ---

func TestRPC_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnv(t, nil, config.RPCConfig{
		AllowedIPs: []string{"127.0.0.1"},
	})

	resp := rpcCall(t, env.url, "signer_info", nil)
	if resp.Error != nil {
		t.Errorf("expected success for 127.0.0.1, got error: %s", resp.Error.Message)
	}
}

func TestRPC_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnv(t, nil, config.RPCConfig{
		AllowedIPs: []string{"10.0.0.0/8"}, // Only allow 10.x.x.x.
	})

	req := Request{JSONRPC: "2.0", Method: "signer_info", ID: 1}
	body, _ := json.Marshal(req)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestParseAllowedIPs(t *testing.T) {
	nets := parseAllowedIPs([]string{"10.0.0.0/8", "192.168.1.5", "::1", "garbage"})
	if len(nets) != 3 {
		t.Fatalf("parsed %d nets, want 3", len(nets))
	}
	if ones, bits := nets[1].Mask.Size(); ones != 32 || bits != 32 {
		t.Errorf("single IPv4 mask = /%d of %d", ones, bits)
	}
	if ones, bits := nets[2].Mask.Size(); ones != 128 || bits != 128 {
		t.Errorf("single IPv6 mask = /%d of %d", ones, bits)
	}
}

// --- CORS ---

func TestRPC_CORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "http://example.com", "*"},
		{"specific match", []string{"http://myapp.com"}, "http://myapp.com", "http://myapp.com"},
		{"specific miss", []string{"http://myapp.com"}, "http://evil.com", ""},
		{"disabled", nil, "http://myapp.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, nil, config.RPCConfig{CORSOrigins: tt.origins})

			body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "signer_info", ID: 1})
			httpReq, _ := http.NewRequest("POST", env.url, bytes.NewReader(body))
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Origin", tt.origin)

			resp, err := http.DefaultClient.Do(httpReq)
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()

			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("CORS origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnv(t, nil, config.RPCConfig{CORSOrigins: []string{"*"}})

	httpReq, _ := http.NewRequest("OPTIONS", env.url, nil)
	httpReq.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
}
