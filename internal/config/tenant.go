package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tenant is the per-tenant reference data that drives channel provisioning
// and channel membership.
type Tenant struct {
	// MeetingsChannel names the channel that receives companion app tabs.
	MeetingsChannel string `yaml:"meetingsChannel"`

	Channels []TenantChannel `yaml:"channels"`
	Apps     []TenantApp     `yaml:"apps"`
}

// TenantChannel is one configured team channel.
type TenantChannel struct {
	Name             string `yaml:"name"`
	MembershipType   string `yaml:"membershipType"`
	AccessLevels     []int  `yaml:"accessLevels"`
	AddRecorderUser  bool   `yaml:"addRecorderUser"`
	IsDefaultChannel bool   `yaml:"isDefaultChannel"`
}

// TenantApp is a companion app installed into every provisioned team.
type TenantApp struct {
	AppID      string `yaml:"appId"`
	TabName    string `yaml:"tabName"`
	ContentURL string `yaml:"contentUrl"`
	WebsiteURL string `yaml:"websiteUrl"`
}

// LoadTenant reads and validates the tenant settings file.
func LoadTenant(path string) (*Tenant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant config: %w", err)
	}
	return ParseTenant(data)
}

// ParseTenant decodes tenant settings from YAML and validates them.
func ParseTenant(data []byte) (*Tenant, error) {
	tenant := &Tenant{MeetingsChannel: "Meetings"}
	if err := yaml.Unmarshal(data, tenant); err != nil {
		return nil, fmt.Errorf("parse tenant config: %w", err)
	}
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return tenant, nil
}

// Validate checks the tenant settings for errors.
func (t *Tenant) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(t.Channels))
	for i, ch := range t.Channels {
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("channels[%d].name is required", i))
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("channels[%d].name %q is duplicated", i, name))
		}
		seen[key] = true

		switch ch.MembershipType {
		case "standard", "private":
		default:
			errs = append(errs, fmt.Errorf("channels[%d].membershipType must be one of: standard, private", i))
		}
	}

	for i, app := range t.Apps {
		if strings.TrimSpace(app.AppID) == "" {
			errs = append(errs, fmt.Errorf("apps[%d].appId is required", i))
		}
	}

	if strings.TrimSpace(t.MeetingsChannel) == "" {
		errs = append(errs, errors.New("meetingsChannel is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
