package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pipestream/internal/capture/file"
	"pipestream/internal/config"
)

// execute runs one pipestream invocation against homeDir.
func execute(t *testing.T, homeDir string, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand(&Env{
		Version: "test",
		Handler: slog.NewTextHandler(io.Discard, nil),
	})
	var stdout, stderr bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--home", homeDir}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "test" {
		t.Errorf("expected version test, got %q", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, _, err := execute(t, t.TempDir(), "", "--log-level", "chatty", "version"); err == nil {
		t.Error("expected error for bad --log-level")
	}
	if _, _, err := execute(t, t.TempDir(), "", "--log-component", "capture", "version"); err == nil {
		t.Error("expected error for --log-component without level")
	}
	if _, _, err := execute(t, t.TempDir(), "", "--log-component", "capture=debug", "version"); err != nil {
		t.Errorf("valid --log-component rejected: %v", err)
	}
}

// =============================================================================
// init
// =============================================================================

func TestInit(t *testing.T) {
	homeDir := t.TempDir()
	out, _, err := execute(t, homeDir, "", "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	path := filepath.Join(homeDir, "config.json")
	if strings.TrimSpace(out) != path {
		t.Errorf("expected %s, got %q", path, out)
	}

	cfg, err := config.Load(path)
	if err != nil || cfg == nil {
		t.Fatalf("load written config: %v, %v", cfg, err)
	}
	if cfg.Capture.Type != "file" || cfg.Capture.Params["dir"] != filepath.Join(homeDir, "captures") {
		t.Errorf("unexpected capture config %+v", cfg.Capture)
	}
	if _, err := os.Stat(filepath.Join(homeDir, "instance_id")); err != nil {
		t.Errorf("instance id not written: %v", err)
	}

	if _, _, err := execute(t, homeDir, "", "init"); err == nil {
		t.Error("expected second init to refuse overwriting")
	}
	if _, _, err := execute(t, homeDir, "", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

// =============================================================================
// capture / redeem / inspect
// =============================================================================

func TestCaptureRedeemInspect(t *testing.T) {
	homeDir := t.TempDir()
	payload := strings.Repeat("<rec>payload</rec>", 500)

	out, _, err := execute(t, homeDir, payload, "capture", "-o", "json")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	var result struct {
		Locator string `json:"locator"`
		Mode    string `json:"mode"`
		Bytes   int64  `json:"bytes"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode capture output %q: %v", out, err)
	}
	if result.Locator == "" || result.Mode != "claimed" || result.Bytes != int64(len(payload)) {
		t.Errorf("unexpected capture result %+v", result)
	}

	out, _, err = execute(t, homeDir, "", "redeem", result.Locator)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if out != payload {
		t.Errorf("redeemed %d bytes, want %d", len(out), len(payload))
	}

	out, _, err = execute(t, homeDir, "", "inspect", "-o", "json")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var list []file.Metadata
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode inspect output: %v", err)
	}
	if len(list) != 1 || list[0].Locator != result.Locator || list[0].Size != int64(len(payload)) {
		t.Errorf("unexpected inspect output %+v", list)
	}

	out, _, err = execute(t, homeDir, "", "inspect", result.Locator)
	if err != nil {
		t.Fatalf("inspect locator: %v", err)
	}
	if !strings.Contains(out, result.Locator) {
		t.Errorf("detail view lacks locator: %q", out)
	}

	out, _, err = execute(t, homeDir, "", "inspect")
	if err != nil {
		t.Fatalf("inspect table: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "LOCATOR") || !strings.HasPrefix(lines[1], result.Locator) {
		t.Errorf("unexpected table %q", out)
	}

	if _, _, err := execute(t, homeDir, "", "inspect", "-o", "yaml"); err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("expected unknown output format error, got %v", err)
	}

	if _, _, err := execute(t, homeDir, "", "redeem", "--delete", result.Locator); err != nil {
		t.Fatalf("redeem --delete: %v", err)
	}
	if _, _, err := execute(t, homeDir, "", "redeem", result.Locator); err == nil {
		t.Error("expected redeem of deleted capture to fail")
	}
}

func TestRunWithCapture(t *testing.T) {
	homeDir := t.TempDir()
	out, stderr, err := execute(t, homeDir, "hello", "run", "--capture")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected payload on stdout, got %q", out)
	}
	fields := strings.Fields(stderr)
	if len(fields) != 2 || fields[0] != "claimed" {
		t.Fatalf("expected mode and locator on stderr, got %q", stderr)
	}
	redeemed, _, err := execute(t, homeDir, "", "redeem", fields[1])
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redeemed != "hello" {
		t.Errorf("redeemed %q", redeemed)
	}
}

// =============================================================================
// rewrite
// =============================================================================

func TestRewrite(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), `<test xmlns='stuff' att='22'>value</test>`,
		"rewrite", "--rule", "stuff=urn:test")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if out != `<test xmlns="urn:test" att="22">value</test>` {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRewriteConfiguredRulesWin(t *testing.T) {
	homeDir := t.TempDir()
	cfg := config.Default(homeDir)
	cfg.Rewrite.Rules = []string{"stuff=urn:configured"}
	if err := config.Save(filepath.Join(homeDir, "config.json"), cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	out, _, err := execute(t, homeDir, `<test xmlns='stuff'/>`, "rewrite", "--rule", "stuff=urn:flag")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if out != `<test xmlns="urn:configured"/>` {
		t.Errorf("unexpected output %q", out)
	}

	out, _, err = execute(t, homeDir, `<test xmlns='stuff'/>`, "rewrite", "--ignore-config", "--rule", "stuff=urn:flag")
	if err != nil {
		t.Fatalf("rewrite --ignore-config: %v", err)
	}
	if out != `<test xmlns="urn:flag"/>` {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRewriteBadRule(t *testing.T) {
	if _, _, err := execute(t, t.TempDir(), "<a/>", "rewrite", "--rule", "no-separator"); err == nil {
		t.Error("expected error for malformed rule")
	}
}

// =============================================================================
// compress / decompress
// =============================================================================

func TestCompressDecompress(t *testing.T) {
	dir := t.TempDir()
	homeDir := t.TempDir()
	input := filepath.Join(dir, "orders.xml")
	payload := strings.Repeat("<order id='1'/>", 1000)
	writeFile(t, input, payload)

	for _, format := range []string{"zip", "gzip", "zstd", "brotli"} {
		t.Run(format, func(t *testing.T) {
			packed := filepath.Join(dir, "orders."+format)
			if _, _, err := execute(t, homeDir, "", "compress", "-c", format, "-O", packed, input); err != nil {
				t.Fatalf("compress: %v", err)
			}
			out, _, err := execute(t, homeDir, "", "decompress", "-c", format, packed)
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if out != payload {
				t.Errorf("round trip mismatch: %d bytes, want %d", len(out), len(payload))
			}
		})
	}
}

func TestDecompressFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	homeDir := t.TempDir()
	packed := filepath.Join(dir, "data.gz")
	if _, _, err := execute(t, homeDir, "abc", "compress", "-O", packed); err != nil {
		t.Fatalf("compress: %v", err)
	}
	out, _, err := execute(t, homeDir, "", "decompress", packed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if out != "abc" {
		t.Errorf("unexpected output %q", out)
	}

	if _, _, err := execute(t, homeDir, "abc", "decompress"); err == nil {
		t.Error("expected error when the format cannot be determined")
	}
}

// =============================================================================
// concat / multipart
// =============================================================================

func TestConcat(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "b.xml"), "<b>2</b>")
	writeFile(t, filepath.Join(dir, "sub", "a.xml"), "<a>1</a>")
	writeFile(t, filepath.Join(dir, "skip.txt"), "nope")

	out, _, err := execute(t, t.TempDir(), "", "concat", filepath.Join(dir, "**", "*.xml"))
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if out != "<b>2</b><a>1</a>" {
		t.Errorf("unexpected output %q", out)
	}

	out, _, err = execute(t, t.TempDir(), "", "concat", "--xml",
		filepath.Join(dir, "sub", "a.xml"), filepath.Join(dir, "b.xml"))
	if err != nil {
		t.Fatalf("concat --xml: %v", err)
	}
	want := `<agg:Root xmlns:agg="http://schemas.microsoft.com/BizTalk/2003/aggschema">` +
		"<InputMessagePart_0><a>1</a></InputMessagePart_0>" +
		"<InputMessagePart_1><b>2</b></InputMessagePart_1>" +
		"</agg:Root>"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}

	if _, _, err := execute(t, t.TempDir(), "", "concat", filepath.Join(dir, "*.json")); err == nil {
		t.Error("expected error for pattern without matches")
	}
}

func TestMultipart(t *testing.T) {
	out, stderr, err := execute(t, t.TempDir(), "a=1&b=2", "multipart")
	if err != nil {
		t.Fatalf("multipart: %v", err)
	}
	contentType := strings.TrimSpace(strings.TrimPrefix(stderr, "Content-Type:"))
	_, boundary, ok := strings.Cut(contentType, "boundary=")
	if !ok {
		t.Fatalf("no boundary in %q", stderr)
	}

	mr := multipart.NewReader(strings.NewReader(out), boundary)
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("next part: %v", err)
	}
	body, _ := io.ReadAll(part)
	if string(body) != "a=1&b=2" {
		t.Errorf("unexpected part body %q", body)
	}
	if _, err := mr.NextPart(); err != io.EOF {
		t.Errorf("expected a single part, got %v", err)
	}
}
