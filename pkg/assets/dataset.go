package assets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benmeehan/iot-swarm/pkg/file"
	"github.com/benmeehan/iot-swarm/pkg/identity"
)

var (
	// ErrNoOrgSelection is returned when no organization ids were supplied.
	ErrNoOrgSelection = errors.New("no organization ids selected")
	// ErrOrgNotFound is returned when a selected organization is missing from the dataset.
	ErrOrgNotFound = errors.New("organization not found in dataset")
	// ErrEmptyDataset is returned when the dataset holds no scenario.
	ErrEmptyDataset = errors.New("dataset contains no scenario")
	// ErrPoolExhausted is returned by Acquire once every identity was handed out.
	ErrPoolExhausted = errors.New("device asset pool exhausted")
)

// Scenario is one top-level entry of the dataset file. Only the first is used.
type Scenario struct {
	Organizations []Organization `json:"organizations" yaml:"organizations"`
}

// Organization groups assets that share one payload template.
type Organization struct {
	OrgID   string  `json:"orgId" yaml:"orgId"`
	Payload string  `json:"payload" yaml:"payload"`
	Assets  []Asset `json:"assets" yaml:"assets"`
}

// Asset is a single device entry.
type Asset struct {
	NameTag   string `json:"nametag" yaml:"nametag"`
	GatewayID string `json:"gatewayId" yaml:"gatewayId"`
}

// ParseOrgIDs splits a colon-separated organization list, dropping blanks.
func ParseOrgIDs(value string) ([]string, error) {
	var ids []string
	for _, part := range strings.Split(value, ":") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoOrgSelection
	}
	return ids, nil
}

// LoadDataset reads the dataset at path and builds a pool holding one identity per
// asset of every selected organization.
func LoadDataset(fileClient file.FileOperations, path string, orgIDs []string) (*Pool, error) {
	var scenarios []Scenario
	if err := fileClient.ReadStructuredFile(path, &scenarios); err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	identities, err := BuildIdentities(scenarios, orgIDs)
	if err != nil {
		return nil, err
	}
	return NewPool(identities), nil
}

// BuildIdentities resolves the selected organizations against the first scenario.
// When an org id appears more than once in the dataset only the first match is used.
func BuildIdentities(scenarios []Scenario, orgIDs []string) ([]identity.DeviceIdentity, error) {
	if len(orgIDs) == 0 {
		return nil, ErrNoOrgSelection
	}
	if len(scenarios) == 0 {
		return nil, ErrEmptyDataset
	}
	scenario := scenarios[0]

	var identities []identity.DeviceIdentity
	for _, orgID := range orgIDs {
		org, ok := findOrganization(scenario.Organizations, orgID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrOrgNotFound, orgID)
		}
		for _, asset := range org.Assets {
			identities = append(identities, identity.DeviceIdentity{
				Tag:             asset.NameTag,
				GatewayID:       asset.GatewayID,
				PayloadTemplate: org.Payload,
				OrgID:           org.OrgID,
			})
		}
	}
	return identities, nil
}

func findOrganization(orgs []Organization, orgID string) (Organization, bool) {
	for _, org := range orgs {
		if org.OrgID == orgID {
			return org, true
		}
	}
	return Organization{}, false
}
