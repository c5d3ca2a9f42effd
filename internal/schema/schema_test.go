package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltin(t *testing.T) {
	project := Builtin()

	if project.App != "netflixapp" {
		t.Errorf("expected app netflixapp, got %s", project.App)
	}

	for _, name := range []string{"CustomUser", "Profile", "Movie", "Video"} {
		if _, ok := project.Model(name); !ok {
			t.Errorf("expected built-in model %s", name)
		}
	}

	movie, _ := project.Model("movie")
	video, ok := movie.Field("video")
	if !ok || video.Type != ManyToMany || video.To != "Video" {
		t.Errorf("expected Movie.video to be many_to_many to Video, got %+v", video)
	}

	if len(movie.Columns()) != len(movie.Fields)-1 {
		t.Errorf("expected many_to_many field excluded from columns")
	}

	if project.Table("CustomUser") != "netflixapp_customuser" {
		t.Errorf("unexpected table name %s", project.Table("CustomUser"))
	}
}

func TestParse(t *testing.T) {
	tc := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name: "valid",
			input: `app = "shop"
[[models]]
name = "Item"
  [[models.fields]]
  name = "title"
  type = "char"
  max_length = 20
`,
		},
		{
			name: "char without max_length",
			input: `app = "shop"
[[models]]
name = "Item"
  [[models.fields]]
  name = "title"
  type = "char"
`,
			wantErr: "max_length",
		},
		{
			name: "unknown type",
			input: `app = "shop"
[[models]]
name = "Item"
  [[models.fields]]
  name = "price"
  type = "money"
`,
			wantErr: "unknown type",
		},
		{
			name: "relation to unknown model",
			input: `app = "shop"
[[models]]
name = "Item"
  [[models.fields]]
  name = "owner"
  type = "foreign_key"
  to = "User"
`,
			wantErr: "unknown model",
		},
		{
			name: "duplicate field",
			input: `app = "shop"
[[models]]
name = "Item"
  [[models.fields]]
  name = "n"
  type = "int"
  [[models.fields]]
  name = "n"
  type = "int"
`,
			wantErr: "duplicate field",
		},
		{
			name: "explicit id",
			input: `app = "shop"
[[models]]
name = "Item"
  [[models.fields]]
  name = "id"
  type = "int"
`,
			wantErr: "implicit",
		},
		{
			name:    "bad app identifier",
			input:   `app = "1shop"`,
			wantErr: "must start with a letter",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses builtin", func(t *testing.T) {
		project, err := Load("")
		if err != nil {
			t.Fatalf("failed to load builtin models: %v", err)
		}
		if len(project.Models) != 4 {
			t.Errorf("expected 4 builtin models, got %d", len(project.Models))
		}
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "models.toml")
		content := "app = \"blog\"\n[[models]]\nname = \"Post\"\n  [[models.fields]]\n  name = \"body\"\n  type = \"text\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write models: %v", err)
		}
		project, err := Load(path)
		if err != nil {
			t.Fatalf("failed to load models: %v", err)
		}
		if project.App != "blog" || len(project.Models) != 1 {
			t.Errorf("unexpected project %+v", project)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestField(t *testing.T) {
	t.Run("Equal", func(t *testing.T) {
		a := Field{Name: "n", Type: Char, MaxLength: 10, Default: Ptr("x"), Choices: []string{"x", "y"}}
		b := a.Clone()
		if !a.Equal(b) {
			t.Error("expected clone to be equal")
		}
		b.Default = Ptr("z")
		if a.Equal(b) {
			t.Error("expected different defaults to compare unequal")
		}
		c := a.Clone()
		c.MaxLength = 20
		if a.Equal(c) {
			t.Error("expected different lengths to compare unequal")
		}
	})

	t.Run("Column and Length", func(t *testing.T) {
		if got := (Field{Name: "owner", Type: ForeignKey}).Column(); got != "owner_id" {
			t.Errorf("expected owner_id, got %s", got)
		}
		if got := (Field{Name: "file", Type: File}).Length(); got != 100 {
			t.Errorf("expected default file length 100, got %d", got)
		}
	})

	t.Run("NeedsBackfill", func(t *testing.T) {
		if !(Field{Name: "n", Type: Int}).NeedsBackfill() {
			t.Error("non-null field without default should need backfill")
		}
		if (Field{Name: "n", Type: Int, Null: true}).NeedsBackfill() {
			t.Error("nullable field should not need backfill")
		}
		if (Field{Name: "n", Type: Int, Default: Ptr("0")}).NeedsBackfill() {
			t.Error("field with default should not need backfill")
		}
	})

	t.Run("Clone is deep", func(t *testing.T) {
		p := Builtin()
		c := p.Clone()
		c.Models[0].Fields[0].Name = "changed"
		if p.Models[0].Fields[0].Name == "changed" {
			t.Error("expected clone to not share field slices")
		}
	})
}
