// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// SeedFile is an account seed document:
//
//	accounts:
//	  - username: admin
//	    password: change-me-now
//	    roles: [admin]
type SeedFile struct {
	Accounts []SeedAccount `yaml:"accounts" json:"accounts" jsonschema:"minItems=1"`
}

// SeedAccount is one account to create.
type SeedAccount struct {
	Username string   `yaml:"username" json:"username" jsonschema:"minLength=3,maxLength=30,pattern=^[a-zA-Z][a-zA-Z0-9_]*$"`
	Password string   `yaml:"password" json:"password" jsonschema:"minLength=8"`
	Roles    []string `yaml:"roles,omitempty" json:"roles,omitempty"`
}

var (
	seedSchemaOnce sync.Once
	seedSchema     *jschema.Schema
	seedSchemaErr  error
)

// SeedSchemaID is the $id of the seed file schema.
const SeedSchemaID = "https://holomush.dev/schemas/sessiongate-seeds.schema.json"

// GenerateSeedSchema generates the JSON Schema of SeedFile.
func GenerateSeedSchema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&SeedFile{})
	schema.ID = jsonschema.ID(SeedSchemaID)
	schema.Title = "sessiongate account seeds"
	schema.Description = "Accounts created at startup when missing"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("auth").Code("SEED_SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

func compiledSeedSchema() (*jschema.Schema, error) {
	seedSchemaOnce.Do(func() {
		raw, err := GenerateSeedSchema()
		if err != nil {
			seedSchemaErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			seedSchemaErr = oops.In("auth").Code("SEED_SCHEMA_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SeedSchemaID, doc); err != nil {
			seedSchemaErr = oops.In("auth").Code("SEED_SCHEMA_FAILED").Wrap(err)
			return
		}
		seedSchema, seedSchemaErr = c.Compile(SeedSchemaID)
		if seedSchemaErr != nil {
			seedSchemaErr = oops.In("auth").Code("SEED_SCHEMA_FAILED").Wrap(seedSchemaErr)
		}
	})
	return seedSchema, seedSchemaErr
}

// ParseSeeds decodes YAML seed data and validates it against the schema.
func ParseSeeds(data []byte) (*SeedFile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, oops.In("auth").Code("SEED_INVALID").Errorf("seed data is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, oops.In("auth").Code("SEED_INVALID").With("operation", "parse yaml").Wrap(err)
	}

	// The validator wants JSON value types; round-trip through encoding/json.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, oops.In("auth").Code("SEED_INVALID").With("operation", "convert yaml").Wrap(err)
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return nil, oops.In("auth").Code("SEED_INVALID").With("operation", "convert yaml").Wrap(err)
	}

	sch, err := compiledSeedSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(inst); err != nil {
		return nil, oops.In("auth").Code("SEED_INVALID").With("operation", "validate").Wrap(err)
	}

	var seeds SeedFile
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, oops.In("auth").Code("SEED_INVALID").With("operation", "decode").Wrap(err)
	}

	seen := make(map[string]bool, len(seeds.Accounts))
	for _, a := range seeds.Accounts {
		key := NormalizeUsername(a.Username)
		if seen[key] {
			return nil, oops.In("auth").Code("SEED_INVALID").
				With("username", a.Username).
				Errorf("duplicate username %q", a.Username)
		}
		seen[key] = true
	}
	return &seeds, nil
}

// ReadSeeds reads and parses a seed file.
func ReadSeeds(path string) (*SeedFile, error) {
	//nolint:gosec // G304: path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.In("auth").Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}
	seeds, err := ParseSeeds(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return seeds, nil
}

// Apply creates every seeded account that does not exist yet and returns
// how many were created. Existing accounts are left untouched.
func (f *SeedFile) Apply(ctx context.Context, repo Repository, hasher PasswordHasher) (int, error) {
	created := 0
	for _, seed := range f.Accounts {
		hash, err := hasher.Hash(seed.Password)
		if err != nil {
			return created, oops.In("auth").Code("SEED_APPLY_FAILED").With("username", seed.Username).Wrap(err)
		}
		account, err := NewAccount(seed.Username, hash, seed.Roles)
		if err != nil {
			return created, oops.In("auth").Code("SEED_APPLY_FAILED").With("username", seed.Username).Wrap(err)
		}
		if err := repo.Create(ctx, account); err != nil {
			if errors.Is(err, ErrUsernameTaken) {
				continue
			}
			return created, oops.In("auth").Code("SEED_APPLY_FAILED").With("username", seed.Username).Wrap(err)
		}
		created++
	}
	return created, nil
}
