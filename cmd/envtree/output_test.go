package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestPrintConfig(t *testing.T) {
	ts := newTestServer(t)
	rc, err := ts.client.GetConfig(context.Background(), ts.project.ID, ts.child.ID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}

	tests := []struct {
		name    string
		reveal  bool
		want    []string
		notWant []string
	}{
		{
			name:    "Masked",
			want:    []string{"Chain:    base -> child", "********", "inherited from base", "overrides base"},
			notWant: []string{"postgres://db"},
		},
		{
			name:   "Revealed",
			reveal: true,
			want:   []string{"postgres://db", "TIMEOUT"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printConfig(&buf, rc, tt.reveal); err != nil {
				t.Fatalf("printConfig: %v", err)
			}
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("output should not contain %q:\n%s", s, out)
				}
			}
		})
	}
}

func TestPrintConfigList_Dangling(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	if err := ts.client.DeleteConfig(ctx, ts.project.ID, ts.base.ID); err != nil {
		t.Fatalf("DeleteConfig: %v", err)
	}
	list, err := ts.client.ListConfigs(ctx, ts.project.ID)
	if err != nil {
		t.Fatalf("ListConfigs: %v", err)
	}

	var buf bytes.Buffer
	if err := printConfigList(&buf, list); err != nil {
		t.Fatalf("printConfigList: %v", err)
	}
	if !strings.Contains(buf.String(), ts.base.ID+" (missing)") {
		t.Errorf("dangling link not shown:\n%s", buf.String())
	}
}

func TestMaskToken(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"", ""},
		{"short", "short"},
		{"0123456789abcdef", "01234567..."},
	} {
		if got := maskToken(tc.in); got != tc.want {
			t.Errorf("maskToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
