package rsyncdconfig_test

import (
	"strings"
	"testing"

	"github.com/oferchen/rsync-sub007/internal/rsyncdconfig"
)

func TestDecodeParsesModules(t *testing.T) {
	doc := `
[[module]]
name = "pub"
path = "/srv/pub"
acl = ["allow 10.0.0.0/8", "deny all"]
writable = false

[[module]]
name = "scratch"
path = "/srv/scratch"
writable = true
`
	cfg, err := rsyncdconfig.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cfg.Modules) != 2 {
		t.Fatalf("got %d modules, want 2", len(cfg.Modules))
	}
	if cfg.Modules[0].Name != "pub" || cfg.Modules[0].Path != "/srv/pub" {
		t.Fatalf("module[0] = %+v", cfg.Modules[0])
	}
	if len(cfg.Modules[0].ACL) != 2 {
		t.Fatalf("module[0].ACL = %v", cfg.Modules[0].ACL)
	}
	if !cfg.Modules[1].Writable {
		t.Fatalf("module[1].Writable = false, want true")
	}
}

func TestDecodeRejectsDuplicateNames(t *testing.T) {
	doc := `
[[module]]
name = "dup"
path = "/a"

[[module]]
name = "dup"
path = "/b"
`
	if _, err := rsyncdconfig.Decode(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for duplicate module names")
	}
}

func TestDecodeRejectsMissingPath(t *testing.T) {
	doc := `
[[module]]
name = "nopath"
`
	if _, err := rsyncdconfig.Decode(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for a module with no path")
	}
}
