package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/loader"
)

func TestCreateFlags_Request(t *testing.T) {
	tests := []struct {
		name    string
		flags   createFlags
		args    []string
		wantErr string
		check   func(t *testing.T, req *v1alpha1.CreateRequest)
	}{
		{
			name:  "static gets defaults",
			flags: createFlags{image: "19.2.0.155", network: "frontend", ip: v1alpha1.NetworkConfig{StaticIP: "192.168.1.50"}},
			args:  []string{"ave01"},
			check: func(t *testing.T, req *v1alpha1.CreateRequest) {
				if req.IPConfig.Netmask != v1alpha1.DefaultNetmask || req.IPConfig.Domain != v1alpha1.DefaultDomain {
					t.Errorf("ip config = %+v", req.IPConfig)
				}
				if req.Kind != "server" {
					t.Errorf("kind = %q", req.Kind)
				}
			},
		},
		{
			name:  "dhcp",
			flags: createFlags{image: "19.2.0.155", network: "frontend"},
			args:  []string{"ave01"},
			check: func(t *testing.T, req *v1alpha1.CreateRequest) {
				if req.IPConfig.Static() || req.IPConfig.Netmask != "" {
					t.Errorf("ip config = %+v", req.IPConfig)
				}
			},
		},
		{
			name:    "missing name",
			flags:   createFlags{image: "19.2.0.155", network: "frontend"},
			wantErr: "a name is required",
		},
		{
			name:    "missing image",
			flags:   createFlags{network: "frontend"},
			args:    []string{"ave01"},
			wantErr: "image is required",
		},
		{
			name:    "bad gateway",
			flags:   createFlags{image: "1", network: "n", ip: v1alpha1.NetworkConfig{StaticIP: "10.0.0.5", DefaultGateway: "gw"}},
			args:    []string{"ave01"},
			wantErr: "default-gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.flags.request(serverKind, tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("request() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("request() error = %v", err)
			}
			tt.check(t, req)
		})
	}
}

func TestCreateFlags_RequestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ndmp.yaml")
	content := "kind: ndmp\nname: ndmp01\nimage: 19.2.0.155\nnetwork: backend\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cf := &createFlags{file: path}

	req, err := cf.request(ndmpKind, []string{"ndmp02"})
	if err != nil {
		t.Fatalf("request() error = %v", err)
	}
	if req.Name != "ndmp02" {
		t.Errorf("name = %q, want the argument to override the file", req.Name)
	}

	if _, err := cf.request(serverKind, nil); err == nil || !strings.Contains(err.Error(), "not a server") {
		t.Errorf("request() error = %v, want kind mismatch", err)
	}
}

func TestCreateCmd_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ave01.yaml")

	cmd := newApplianceCmd(serverKind)
	cmd.SetArgs([]string{"create", "ave01", "--image", "19.2.0.155", "--network", "frontend", "--ip", "192.168.1.50", "--save", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	req, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if req.Name != "ave01" || req.Image != "19.2.0.155" || req.Network != "frontend" {
		t.Errorf("saved request = %+v", req)
	}
	if req.Kind != "server" || req.APIVersion != v1alpha1.APIVersion() {
		t.Errorf("type meta = %+v", req.TypeMeta)
	}
	if req.IPConfig.StaticIP != "192.168.1.50" || req.IPConfig.DefaultGateway != v1alpha1.DefaultGateway {
		t.Errorf("ip config = %+v", req.IPConfig)
	}

	// The saved file drives a later create.
	cf := &createFlags{file: path}
	if _, err := cf.request(serverKind, nil); err != nil {
		t.Errorf("request() from saved file error = %v", err)
	}
}

func TestCreateFlags_RejectsAmbiguousName(t *testing.T) {
	cf := &createFlags{image: "19.2.0.155", network: "frontend"}
	if _, err := cf.request(serverKind, []string{"ave01_2"}); err == nil || !strings.Contains(err.Error(), "invalid character") {
		t.Errorf("request() error = %v, want invalid character", err)
	}
}

func TestNewApplianceCmd(t *testing.T) {
	cmd := newApplianceCmd(ndmpKind)
	if cmd.Use != "ndmp" {
		t.Errorf("Use = %q", cmd.Use)
	}

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	if strings.Join(names, ",") != "create,delete,images,show" {
		t.Errorf("subcommands = %v", names)
	}
	for _, flag := range []string{"user", "wait", "output", "timeout"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing --%s", flag)
		}
	}
}
