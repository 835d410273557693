package store

import (
	"context"
	"strings"
	"sync"

	"github.com/Smart-Charging/scn-node/scpi"
)

// Memory is an in-process Store for tests and single-node development runs.
// One mutex guards all tables; per-platform lock sections reuse it, which
// trivially satisfies the serialization requirement for rules mutations.
type Memory struct {
	mu sync.Mutex

	nextPlatformID int64
	nextRoleID     int64
	nextEndpointID int64
	nextProxyID    int64
	nextRulesID    int64

	platforms map[int64]*Platform
	roles     map[int64]*Role
	endpoints map[int64]*Endpoint
	proxies   map[int64]*ProxyResource
	rules     map[int64]*RulesListEntry

	platformLocks map[int64]*sync.Mutex
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		platforms:     make(map[int64]*Platform),
		roles:         make(map[int64]*Role),
		endpoints:     make(map[int64]*Endpoint),
		proxies:       make(map[int64]*ProxyResource),
		rules:         make(map[int64]*RulesListEntry),
		platformLocks: make(map[int64]*sync.Mutex),
	}
}

func (m *Memory) CreatePlatform(_ context.Context, platform *Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPlatformID++
	platform.ID = m.nextPlatformID
	copied := *platform
	m.platforms[platform.ID] = &copied
	return nil
}

func (m *Memory) UpdatePlatform(_ context.Context, platform *Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.platforms[platform.ID]; !ok {
		return ErrNotFound
	}
	copied := *platform
	m.platforms[platform.ID] = &copied
	return nil
}

func (m *Memory) PlatformByID(_ context.Context, id int64) (*Platform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	platform, ok := m.platforms[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *platform
	return &copied, nil
}

func (m *Memory) PlatformByTokenA(_ context.Context, token string) (*Platform, error) {
	return m.platformByToken(token, func(p *Platform) string { return p.Auth.TokenA })
}

func (m *Memory) PlatformByTokenC(_ context.Context, token string) (*Platform, error) {
	return m.platformByToken(token, func(p *Platform) string { return p.Auth.TokenC })
}

func (m *Memory) platformByToken(token string, get func(*Platform) string) (*Platform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		return nil, ErrNotFound
	}
	for _, platform := range m.platforms {
		if get(platform) == token {
			copied := *platform
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) DeletePlatform(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.platforms, id)
	for roleID, role := range m.roles {
		if role.PlatformID == id {
			delete(m.roles, roleID)
		}
	}
	for endpointID, endpoint := range m.endpoints {
		if endpoint.PlatformID == id {
			delete(m.endpoints, endpointID)
		}
	}
	for rulesID, entry := range m.rules {
		if entry.PlatformID == id {
			delete(m.rules, rulesID)
		}
	}
	return nil
}

func (m *Memory) RoleExists(_ context.Context, party scpi.BasicRole) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findRole(party) != nil, nil
}

func (m *Memory) RoleExistsOnPlatform(_ context.Context, platformID int64, party scpi.BasicRole) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role := m.findRole(party)
	return role != nil && role.PlatformID == platformID, nil
}

func (m *Memory) PlatformIDForRole(_ context.Context, party scpi.BasicRole) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role := m.findRole(party)
	if role == nil {
		return 0, ErrNotFound
	}
	return role.PlatformID, nil
}

func (m *Memory) RolesForPlatform(_ context.Context, platformID int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for _, role := range m.roles {
		if role.PlatformID == platformID {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (m *Memory) findRole(party scpi.BasicRole) *Role {
	for _, role := range m.roles {
		if strings.EqualFold(role.CountryCode, party.Country) && strings.EqualFold(role.PartyID, party.ID) {
			return role
		}
	}
	return nil
}

func (m *Memory) SaveRoles(_ context.Context, roles []Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range roles {
		m.nextRoleID++
		roles[i].ID = m.nextRoleID
		copied := roles[i]
		m.roles[copied.ID] = &copied
	}
	return nil
}

func (m *Memory) DeleteRolesForPlatform(_ context.Context, platformID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, role := range m.roles {
		if role.PlatformID == platformID {
			delete(m.roles, id)
		}
	}
	return nil
}

func (m *Memory) EndpointFor(_ context.Context, platformID int64, module scpi.ModuleID, role scpi.InterfaceRole) (*Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, endpoint := range m.endpoints {
		if endpoint.PlatformID == platformID && endpoint.Identifier == module && endpoint.Role == role {
			copied := *endpoint
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ReplaceEndpoints(_ context.Context, platformID int64, endpoints []Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, endpoint := range m.endpoints {
		if endpoint.PlatformID == platformID {
			delete(m.endpoints, id)
		}
	}
	for i := range endpoints {
		m.nextEndpointID++
		endpoints[i].ID = m.nextEndpointID
		endpoints[i].PlatformID = platformID
		copied := endpoints[i]
		m.endpoints[copied.ID] = &copied
	}
	return nil
}

func (m *Memory) DeleteEndpointsForPlatform(ctx context.Context, platformID int64) error {
	return m.ReplaceEndpoints(ctx, platformID, nil)
}

func (m *Memory) CreateProxyResource(_ context.Context, resource *ProxyResource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextProxyID++
	resource.ID = m.nextProxyID
	copied := *resource
	copied.Sender = copied.Sender.Normalize()
	copied.Receiver = copied.Receiver.Normalize()
	m.proxies[resource.ID] = &copied
	return nil
}

func (m *Memory) ProxyResourceByID(_ context.Context, id int64, sender, receiver scpi.BasicRole) (*ProxyResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proxy, ok := m.proxies[id]
	if !ok || !proxy.Sender.Equal(sender) || !proxy.Receiver.Equal(receiver) {
		return nil, ErrNotFound
	}
	copied := *proxy
	return &copied, nil
}

func (m *Memory) ProxyResourceByAlternativeUID(_ context.Context, uid string, sender, receiver scpi.BasicRole) (*ProxyResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if uid == "" {
		return nil, ErrNotFound
	}
	for _, proxy := range m.proxies {
		if proxy.AlternativeUID == uid && proxy.Sender.Equal(sender) && proxy.Receiver.Equal(receiver) {
			copied := *proxy
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) DeleteProxyResource(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proxies, id)
	return nil
}

func (m *Memory) RulesListForPlatform(_ context.Context, platformID int64) ([]RulesListEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RulesListEntry
	for _, entry := range m.rules {
		if entry.PlatformID == platformID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (m *Memory) RulesEntryExists(_ context.Context, platformID int64, counterparty scpi.BasicRole) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.rules {
		if entry.PlatformID == platformID && entry.Counterparty.Equal(counterparty) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SaveRulesEntry(_ context.Context, entry *RulesListEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRulesID++
	entry.ID = m.nextRulesID
	copied := *entry
	copied.Counterparty = copied.Counterparty.Normalize()
	m.rules[entry.ID] = &copied
	return nil
}

func (m *Memory) ReplaceRulesList(ctx context.Context, platformID int64, entries []RulesListEntry) error {
	if err := m.DeleteRulesListForPlatform(ctx, platformID); err != nil {
		return err
	}
	for i := range entries {
		entries[i].PlatformID = platformID
		if err := m.SaveRulesEntry(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) DeleteRulesEntry(_ context.Context, platformID int64, counterparty scpi.BasicRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.rules {
		if entry.PlatformID == platformID && entry.Counterparty.Equal(counterparty) {
			delete(m.rules, id)
		}
	}
	return nil
}

func (m *Memory) DeleteRulesListForPlatform(_ context.Context, platformID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.rules {
		if entry.PlatformID == platformID {
			delete(m.rules, id)
		}
	}
	return nil
}

func (m *Memory) WithPlatformLock(_ context.Context, platformID int64, fn func() error) error {
	m.mu.Lock()
	lock, ok := m.platformLocks[platformID]
	if !ok {
		lock = &sync.Mutex{}
		m.platformLocks[platformID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}
