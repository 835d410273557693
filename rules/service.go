package rules

import (
	"context"

	"github.com/Smart-Charging/scn-node/scpi"
	"github.com/Smart-Charging/scn-node/store"
)

// Party is one list entry as platforms see it: a counterparty and the
// modules the rule covers.
type Party struct {
	ID      string   `json:"id"`
	Country string   `json:"country"`
	Modules []string `json:"modules"`
}

// List is one of the two rule lists with its activation state.
type List struct {
	Active bool    `json:"active"`
	List   []Party `json:"list"`
}

// Rules is a platform's full rules document.
type Rules struct {
	Signatures bool `json:"signatures"`
	Whitelist  List `json:"whitelist"`
	Blacklist  List `json:"blacklist"`
}

type listKind int

const (
	whitelist listKind = iota
	blacklist
)

func (k listKind) name() string {
	if k == whitelist {
		return "whitelist"
	}
	return "blacklist"
}

// Service implements rules reads and mutations, keyed by the requesting
// platform's token C.
type Service struct {
	store store.Store
}

// New builds a Service on the given store.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Rules returns the platform's current rules. Entries are only exposed
// under the list that is active.
func (s *Service) Rules(ctx context.Context, authorization string) (*Rules, error) {
	platform, err := s.findPlatform(ctx, authorization)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.RulesListForPlatform(ctx, platform.ID)
	if err != nil {
		return nil, err
	}

	parties := make([]Party, 0, len(entries))
	for _, entry := range entries {
		parties = append(parties, Party{
			ID:      entry.Counterparty.ID,
			Country: entry.Counterparty.Country,
			Modules: entry.Modules.Modules(),
		})
	}

	rules := &Rules{
		Signatures: platform.Rules.Signatures,
		Whitelist:  List{Active: platform.Rules.Whitelist, List: []Party{}},
		Blacklist:  List{Active: platform.Rules.Blacklist, List: []Party{}},
	}
	if platform.Rules.Whitelist {
		rules.Whitelist.List = parties
	}
	if platform.Rules.Blacklist {
		rules.Blacklist.List = parties
	}
	return rules, nil
}

// ToggleSignatures flips the platform's signature requirement.
func (s *Service) ToggleSignatures(ctx context.Context, authorization string) error {
	platform, err := s.findPlatform(ctx, authorization)
	if err != nil {
		return err
	}

	return s.store.WithPlatformLock(ctx, platform.ID, func() error {
		platform, err := s.store.PlatformByID(ctx, platform.ID)
		if err != nil {
			return err
		}
		platform.Rules.Signatures = !platform.Rules.Signatures
		return s.store.UpdatePlatform(ctx, platform)
	})
}

// BlockAll activates an empty whitelist, cutting the platform off from every
// counterparty until entries are added.
func (s *Service) BlockAll(ctx context.Context, authorization string) error {
	platform, err := s.findPlatform(ctx, authorization)
	if err != nil {
		return err
	}

	return s.store.WithPlatformLock(ctx, platform.ID, func() error {
		platform, err := s.store.PlatformByID(ctx, platform.ID)
		if err != nil {
			return err
		}
		if platform.Rules.Blacklist {
			return errBothActive()
		}
		platform.Rules.Whitelist = true
		if err := s.store.DeleteRulesListForPlatform(ctx, platform.ID); err != nil {
			return err
		}
		return s.store.UpdatePlatform(ctx, platform)
	})
}

// UpdateWhitelist replaces the whitelist. An empty list deactivates it.
func (s *Service) UpdateWhitelist(ctx context.Context, authorization string, parties []Party) error {
	return s.updateList(ctx, authorization, whitelist, parties)
}

// UpdateBlacklist replaces the blacklist. An empty list deactivates it.
func (s *Service) UpdateBlacklist(ctx context.Context, authorization string, parties []Party) error {
	return s.updateList(ctx, authorization, blacklist, parties)
}

// AppendToWhitelist adds one entry to the whitelist, activating it.
func (s *Service) AppendToWhitelist(ctx context.Context, authorization string, party Party) error {
	return s.appendToList(ctx, authorization, whitelist, party)
}

// AppendToBlacklist adds one entry to the blacklist, activating it.
func (s *Service) AppendToBlacklist(ctx context.Context, authorization string, party Party) error {
	return s.appendToList(ctx, authorization, blacklist, party)
}

// DeleteFromWhitelist removes a counterparty from the whitelist. Removing
// the last entry deactivates the list.
func (s *Service) DeleteFromWhitelist(ctx context.Context, authorization string, counterparty scpi.BasicRole) error {
	return s.deleteFromList(ctx, authorization, whitelist, counterparty)
}

// DeleteFromBlacklist removes a counterparty from the blacklist. Removing
// the last entry deactivates the list.
func (s *Service) DeleteFromBlacklist(ctx context.Context, authorization string, counterparty scpi.BasicRole) error {
	return s.deleteFromList(ctx, authorization, blacklist, counterparty)
}

func (s *Service) updateList(ctx context.Context, authorization string, kind listKind, parties []Party) error {
	if err := checkModuleLists(parties); err != nil {
		return err
	}

	platform, err := s.findPlatform(ctx, authorization)
	if err != nil {
		return err
	}

	return s.store.WithPlatformLock(ctx, platform.ID, func() error {
		platform, err := s.store.PlatformByID(ctx, platform.ID)
		if err != nil {
			return err
		}

		if len(parties) == 0 {
			setActive(&platform.Rules, kind, false)
		} else {
			if otherActive(platform.Rules, kind) {
				return errBothActive()
			}
			setActive(&platform.Rules, kind, true)
		}

		if err := s.store.UpdatePlatform(ctx, platform); err != nil {
			return err
		}

		entries := make([]store.RulesListEntry, 0, len(parties))
		for _, party := range parties {
			entries = append(entries, store.RulesListEntry{
				PlatformID:   platform.ID,
				Counterparty: scpi.BasicRole{ID: party.ID, Country: party.Country}.Normalize(),
				Modules:      store.FlagsFromModules(party.Modules),
			})
		}
		return s.store.ReplaceRulesList(ctx, platform.ID, entries)
	})
}

func (s *Service) appendToList(ctx context.Context, authorization string, kind listKind, party Party) error {
	if err := checkModules(party.Modules); err != nil {
		return err
	}

	platform, err := s.findPlatform(ctx, authorization)
	if err != nil {
		return err
	}

	return s.store.WithPlatformLock(ctx, platform.ID, func() error {
		platform, err := s.store.PlatformByID(ctx, platform.ID)
		if err != nil {
			return err
		}

		if otherActive(platform.Rules, kind) {
			return errBothActive()
		}
		setActive(&platform.Rules, kind, true)

		counterparty := scpi.BasicRole{ID: party.ID, Country: party.Country}.Normalize()
		exists, err := s.store.RulesEntryExists(ctx, platform.ID, counterparty)
		if err != nil {
			return err
		}
		if exists {
			return scpi.ErrInvalidParams("Party already on SCN Rules %s", kind.name())
		}

		if err := s.store.UpdatePlatform(ctx, platform); err != nil {
			return err
		}
		return s.store.SaveRulesEntry(ctx, &store.RulesListEntry{
			PlatformID:   platform.ID,
			Counterparty: counterparty,
			Modules:      store.FlagsFromModules(party.Modules),
		})
	})
}

func (s *Service) deleteFromList(ctx context.Context, authorization string, kind listKind, counterparty scpi.BasicRole) error {
	platform, err := s.findPlatform(ctx, authorization)
	if err != nil {
		return err
	}

	return s.store.WithPlatformLock(ctx, platform.ID, func() error {
		platform, err := s.store.PlatformByID(ctx, platform.ID)
		if err != nil {
			return err
		}

		if otherActive(platform.Rules, kind) || !isActive(platform.Rules, kind) {
			return scpi.ErrClientGeneric("Cannot delete entry from SCN Rules %s", kind.name())
		}

		if err := s.store.DeleteRulesEntry(ctx, platform.ID, counterparty); err != nil {
			return err
		}

		remaining, err := s.store.RulesListForPlatform(ctx, platform.ID)
		if err != nil {
			return err
		}
		setActive(&platform.Rules, kind, len(remaining) > 0)
		return s.store.UpdatePlatform(ctx, platform)
	})
}

func (s *Service) findPlatform(ctx context.Context, authorization string) (*store.Platform, error) {
	platform, err := s.store.PlatformByTokenC(ctx, scpi.ExtractToken(authorization))
	if err != nil {
		return nil, scpi.ErrInvalidParams("Invalid CREDENTIALS_TOKEN_C")
	}
	return platform, nil
}

func isActive(rules store.PlatformRules, kind listKind) bool {
	if kind == whitelist {
		return rules.Whitelist
	}
	return rules.Blacklist
}

func otherActive(rules store.PlatformRules, kind listKind) bool {
	if kind == whitelist {
		return rules.Blacklist
	}
	return rules.Whitelist
}

func setActive(rules *store.PlatformRules, kind listKind, active bool) {
	if kind == whitelist {
		rules.Whitelist = active
	} else {
		rules.Blacklist = active
	}
}

func errBothActive() error {
	return scpi.ErrClientGeneric("SCN Rules whitelist and blacklist cannot be active at same time")
}

func checkModules(modules []string) error {
	if len(modules) == 0 {
		return scpi.ErrClientGeneric("Module list is empty")
	}
	for _, m := range modules {
		if m == "" {
			return scpi.ErrClientGeneric("Module list is empty")
		}
	}
	return nil
}

func checkModuleLists(parties []Party) error {
	for _, party := range parties {
		if len(party.Modules) == 0 {
			return scpi.ErrClientGeneric("Module list of one the party is empty")
		}
		for _, m := range party.Modules {
			if m == "" {
				return scpi.ErrClientGeneric("One of the element of module list is empty")
			}
		}
	}
	return nil
}
