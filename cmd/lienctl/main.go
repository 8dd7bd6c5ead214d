package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"lienledger/native/lien"
	"lienledger/rpc"
)

const (
	defaultRPCURL = "http://127.0.0.1:8645/rpc"
	rpcURLEnv     = "LIEN_RPC_URL"
	rpcTokenEnv   = "LIEN_RPC_TOKEN"
)

func main() {
	pretty := term.IsTerminal(int(os.Stdout.Fd()))
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, pretty))
}

func run(args []string, stdout, stderr io.Writer, pretty bool) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	var err error
	switch args[0] {
	case "lien-id":
		err = runLienID(args[1:], stdout)
	case "stack-hash":
		err = runStackHash(args[1:], stdout)
	case "call":
		err = runCall(args[1:], stdout, pretty)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lienctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  lien-id -terms <file>     print the identifier of the terms in file")
	fmt.Fprintln(w, "  stack-hash -stack <file>  print the collateral state hash of a stack")
	fmt.Fprintln(w, "  call -method <name> [-params <json>] [-rpc <url>] [-token <jwt>]")
}

func readJSON(path string, out interface{}) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("file path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func runLienID(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("lien-id", flag.ContinueOnError)
	path := fs.String("terms", "", "JSON file holding the lien terms")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var wire rpc.TermsJSON
	if err := readJSON(*path, &wire); err != nil {
		return err
	}
	terms, err := wire.Terms()
	if err != nil {
		return err
	}
	id, err := lien.LienID(terms)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, id.Hex())
	return nil
}

func runStackHash(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("stack-hash", flag.ContinueOnError)
	path := fs.String("stack", "", "JSON file holding the stack")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var wire rpc.StackJSON
	if err := readJSON(*path, &wire); err != nil {
		return err
	}
	stack, err := wire.Stack()
	if err != nil {
		return err
	}
	hash, err := lien.StackHash(stack)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash.Hex())
	return nil
}

func runCall(args []string, stdout io.Writer, pretty bool) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	endpoint := fs.String("rpc", envOr(rpcURLEnv, defaultRPCURL), "JSON-RPC endpoint")
	method := fs.String("method", "", "JSON-RPC method name")
	params := fs.String("params", "", "JSON object passed as the single parameter")
	token := fs.String("token", os.Getenv(rpcTokenEnv), "bearer token")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*method) == "" {
		return fmt.Errorf("-method is required")
	}
	request := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": *method}
	if raw := strings.TrimSpace(*params); raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("-params is not valid JSON")
		}
		request["params"] = []json.RawMessage{json.RawMessage(raw)}
	}
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, *endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(*token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(*token))
	}
	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	out := []byte(decoded.Result)
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, decoded.Result, "", "  "); err == nil {
			out = buf.Bytes()
		}
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
