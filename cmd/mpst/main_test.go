package main

import (
	"bytes"
	"strings"
	"testing"
)

const requestResponseJSON = `{
  "protocols": [
    {
      "name": "RequestResponse",
      "roles": [{"Name": "Client"}, {"Name": "Server"}],
      "body": {
        "kind": "sequence",
        "items": [
          {"kind": "message", "sender": "Client", "receivers": ["Server"], "message": {"Label": "Request", "Payload": {"Name": "String"}}},
          {"kind": "message", "sender": "Server", "receivers": ["Client"], "message": {"Label": "Response", "Payload": {"Name": "Int"}}}
        ]
      }
    }
  ]
}`

const deadlockJSON = `{
  "protocols": [
    {
      "name": "Bad",
      "roles": [{"Name": "A"}, {"Name": "B"}],
      "body": {
        "kind": "parallel",
        "branches": [
          {"body": {"kind": "message", "sender": "A", "receivers": ["B"], "message": {"Label": "M1"}}},
          {"body": {"kind": "message", "sender": "A", "receivers": ["B"], "message": {"Label": "M2"}}}
        ]
      }
    }
  ]
}`

func runCLI(t *testing.T, args []string, stdin string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errBuf bytes.Buffer
	code = run(args, strings.NewReader(stdin), &out, &errBuf)
	return out.String(), errBuf.String(), code
}

func TestCLIParse(t *testing.T) {
	stdout, _, code := runCLI(t, []string{"parse", "--stdin"}, requestResponseJSON)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout, "RequestResponse") {
		t.Fatalf("expected protocol name in output, got %q", stdout)
	}
}

func TestCLIVerifyOK(t *testing.T) {
	stdout, stderr, code := runCLI(t, []string{"verify", "--stdin"}, requestResponseJSON)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d (stderr=%s)", code, stderr)
	}
	if !strings.Contains(stdout, "ok") {
		t.Fatalf("expected ok on stdout, got %q", stdout)
	}
}

func TestCLIVerifyReportsRace(t *testing.T) {
	_, stderr, code := runCLI(t, []string{"verify", "--stdin"}, deadlockJSON)
	if code != exitVerifyFailed {
		t.Fatalf("expected exit 1 (verification failure), got %d", code)
	}
	if !strings.Contains(stderr, "race") {
		t.Fatalf("expected a race violation reported, got %q", stderr)
	}
}

func TestCLIProjectEmitsBothRoles(t *testing.T) {
	stdout, stderr, code := runCLI(t, []string{"project", "--stdin", "--format", "text"}, requestResponseJSON)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d (stderr=%s)", code, stderr)
	}
	if !strings.Contains(stdout, "!Request(String) to Server;") || !strings.Contains(stdout, "?Request(String) from Client;") {
		t.Fatalf("expected both Client and Server projections, got %q", stdout)
	}
}

func TestCLIProjectSingleRole(t *testing.T) {
	stdout, stderr, code := runCLI(t, []string{"project", "--stdin", "--role", "Client", "--format", "text"}, requestResponseJSON)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d (stderr=%s)", code, stderr)
	}
	if strings.Contains(stdout, "from Client") {
		t.Fatalf("did not expect Server's projection when --role=Client, got %q", stdout)
	}
	if !strings.Contains(stdout, "!Request(String) to Server;") {
		t.Fatalf("expected Client's own send, got %q", stdout)
	}
}

func TestCLISimulateRequestResponse(t *testing.T) {
	stdout, stderr, code := runCLI(t, []string{"simulate", "--stdin"}, requestResponseJSON)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d (stderr=%s)", code, stderr)
	}
	if !strings.Contains(stdout, "success=true") {
		t.Fatalf("expected a successful run, got %q", stdout)
	}
}

func TestCLIUnknownSubcommand(t *testing.T) {
	_, _, code := runCLI(t, []string{"bogus"}, "")
	if code != exitIOError {
		t.Fatalf("expected exit 3 for an unknown subcommand, got %d", code)
	}
}

func TestCLINoInput(t *testing.T) {
	_, _, code := runCLI(t, []string{"parse"}, "")
	if code != exitParseError {
		t.Fatalf("expected exit 2 when no input is supplied, got %d", code)
	}
}
