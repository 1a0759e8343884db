package browser

import (
	"testing"

	"github.com/v0xg/voiceassist/internal/platform"
)

func TestPackageFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.example.com/login", "com.example"},
		{"https://mail.google.com/mail/u/0", "com.google.mail"},
		{"http://localhost:8080/", "localhost"},
		{"HTTPS://Shop.Example.CO.UK", "uk.co.example.shop"},
		{"about:blank", "system.blank"},
		{"chrome://settings", "system.settings"},
		{"not a url", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PackageFromURL(tt.url); got != tt.want {
			t.Errorf("PackageFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestIsSystemPackage(t *testing.T) {
	if !IsSystemPackage(PackageFromURL("chrome://newtab")) {
		t.Error("chrome://newtab is not a system page")
	}
	if IsSystemPackage("com.example") {
		t.Error("com.example reported as system")
	}
}

func TestParseProps(t *testing.T) {
	p, err := parseProps(`{"text":"Login","desc":"","tag":"button","id":"go",
		"left":10,"top":20,"right":110,"bottom":60,
		"clickable":true,"editable":false,"focusable":true,"checkable":false,"children":0}`)
	if err != nil {
		t.Fatal(err)
	}
	n := &node{props: p, pkg: "com.example"}
	if n.Text() != "Login" || n.ClassName() != "html.button" || n.ViewID() != "go" || !n.IsClickable() {
		t.Errorf("node: %+v", p)
	}
	if got := n.Bounds(); got != (platform.Rect{Left: 10, Top: 20, Right: 110, Bottom: 60}) {
		t.Errorf("Bounds = %+v", got)
	}
	if _, err := parseProps("null garbage"); err == nil {
		t.Error("expected decode error")
	}
}
