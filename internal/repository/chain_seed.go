package repository

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// ChainSeedFile is the YAML document accepted by `reportflow seed-chains`.
//
//	organizations:
//	  - id: org-ops
//	    steps:
//	      - name: Section lead
//	        approver_positions: [pos-lead]
type ChainSeedFile struct {
	Organizations []OrganizationChain `yaml:"organizations"`
}

// OrganizationChain is one organization's ordered approval steps.
type OrganizationChain struct {
	ID    string         `yaml:"id"`
	Steps []ApprovalStep `yaml:"steps"`
}

// ParseChainSeed decodes and validates a seed document.
func ParseChainSeed(data []byte) (*ChainSeedFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var seed ChainSeedFile
	if err := dec.Decode(&seed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid chain seed file")
	}

	seen := make(map[string]bool)
	for i, org := range seed.Organizations {
		if org.ID == "" {
			return nil, errors.InvalidInput("organizations", fmt.Sprintf("organization %d has no id", i))
		}
		if seen[org.ID] {
			return nil, errors.InvalidInput("organizations", "duplicate organization "+org.ID)
		}
		seen[org.ID] = true

		for j, step := range org.Steps {
			if step.Name == "" {
				return nil, errors.InvalidInput("steps", fmt.Sprintf("%s step %d has no name", org.ID, j+1))
			}
			if len(step.ApproverPositionIDs) == 0 {
				return nil, errors.InvalidInput("approver_positions",
					fmt.Sprintf("%s step %q has no approver positions", org.ID, step.Name))
			}
		}
	}
	return &seed, nil
}

// ApplyChainSeed replaces every listed organization's chain in one
// transaction and returns the organization ids written.
func ApplyChainSeed(ctx context.Context, db *database.DB, seed *ChainSeedFile) ([]string, error) {
	orgIDs := make([]string, 0, len(seed.Organizations))
	err := db.InTransaction(ctx, func(tx pgx.Tx) error {
		repo := NewApprovalChainRepository(tx)
		for _, org := range seed.Organizations {
			if _, err := repo.ReplaceChain(ctx, org.ID, org.Steps); err != nil {
				return err
			}
			orgIDs = append(orgIDs, org.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orgIDs, nil
}
