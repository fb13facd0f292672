package rolepolicy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fintherapy-backend/internal/domain"
)

// Policy is the parsed role policy file
type Policy struct {
	EmployerAdminAllowlist []string                `yaml:"employer_admin_allowlist"`
	EmployerEmailMap       map[string]string       `yaml:"employer_email_map"`
	DefaultSubsidy         *domain.SubsidyDefaults `yaml:"default_subsidy"`

	admins map[string]struct{}
}

// Parse decodes and normalizes a YAML policy document
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse role policy: %w", err)
	}
	p.normalize()
	return &p, nil
}

// LoadFile reads a policy file. A missing file yields an empty policy.
func LoadFile(path string) (*Policy, error) {
	p, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(nil, nil), nil
	}
	return p, err
}

func readFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role policy %s: %w", path, err)
	}
	return Parse(data)
}

// New builds a policy in code, mostly for tests
func New(admins []string, employers map[string]string) *Policy {
	p := &Policy{EmployerAdminAllowlist: admins, EmployerEmailMap: employers}
	p.normalize()
	return p
}

func (p *Policy) normalize() {
	p.admins = make(map[string]struct{}, len(p.EmployerAdminAllowlist))
	for _, email := range p.EmployerAdminAllowlist {
		p.admins[domain.NormalizeEmail(email)] = struct{}{}
	}
	normalized := make(map[string]string, len(p.EmployerEmailMap))
	for key, employer := range p.EmployerEmailMap {
		name := strings.TrimSpace(employer)
		if name == "" {
			continue
		}
		normalized[domain.NormalizeEmail(key)] = name
	}
	p.EmployerEmailMap = normalized
}

func (p *Policy) IsEmployerAdmin(email string) bool {
	_, ok := p.admins[domain.NormalizeEmail(email)]
	return ok
}

func (p *Policy) EmployerFor(email string) (string, bool) {
	email = domain.NormalizeEmail(email)
	if name, ok := p.EmployerEmailMap[email]; ok {
		return name, true
	}
	if d := domain.EmailDomain(email); d != "" {
		if name, ok := p.EmployerEmailMap[d]; ok {
			return name, true
		}
	}
	return "", false
}

func (p *Policy) Subsidy() domain.SubsidyDefaults {
	if p.DefaultSubsidy == nil {
		return domain.DefaultSubsidy()
	}
	return *p.DefaultSubsidy
}
