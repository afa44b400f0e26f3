package configschema

import (
	"encoding/json"
	"testing"

	"github.com/nimburion/docstore/pkg/config"
)

func TestBuildSchema_UsesMapstructureKeys(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	for _, key := range []string{"service", "log", "query", "snapshot", "events", "metrics", "tracing"} {
		if _, ok := schema.Properties[key]; !ok {
			t.Errorf("expected %s root key in generated schema", key)
		}
	}
	if _, ok := schema.Properties["Snapshot"]; ok {
		t.Fatal("did not expect Go field name as root key")
	}

	snapshot := schema.Properties["snapshot"]
	for _, key := range []string{"backend", "operation_timeout", "s3", "redis", "mongodb"} {
		if _, ok := snapshot.Properties[key]; !ok {
			t.Errorf("expected snapshot.%s property", key)
		}
	}
	if _, ok := snapshot.Properties["s3"].Properties["use_path_style"]; !ok {
		t.Error("expected snapshot.s3.use_path_style property")
	}
}

func TestBuildSchema_InjectsDefaults(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	backend := schema.Properties["snapshot"].Properties["backend"]
	var got string
	if err := json.Unmarshal(backend.Default, &got); err != nil {
		t.Fatalf("decode default: %v", err)
	}
	if got != config.SnapshotBackendFile {
		t.Errorf("expected backend default %q, got %q", config.SnapshotBackendFile, got)
	}

	timeout := schema.Properties["snapshot"].Properties["operation_timeout"]
	if string(timeout.Default) != `"30s"` {
		t.Errorf("expected duration default as string, got %s", timeout.Default)
	}
	if len(schema.Required) != 0 {
		t.Errorf("expected no required root keys once defaults apply, got %v", schema.Required)
	}
}

func TestBuildSchema_RestrictsEnums(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	enum := schema.Properties["snapshot"].Properties["backend"].Enum
	if len(enum) != 4 {
		t.Fatalf("expected 4 snapshot backends, got %v", enum)
	}
}

func TestBuildSchemaWithDefaults_Title(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Service.Name = "inventory"
	schema, err := BuildSchemaWithDefaults(cfg)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	if schema.Title != "inventory Configuration" {
		t.Errorf("unexpected title %q", schema.Title)
	}

	bare, err := BuildSchemaWithDefaults(nil)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	if bare.Properties["log"].Properties["level"].Default != nil {
		t.Error("expected no defaults without a base config")
	}
}
