package persist

import (
	"errors"
	"time"

	"pkt.systems/penroseide/schema"
)

// DefaultDraftDelay is the quiet period before a draft edit is written.
const DefaultDraftDelay = 200 * time.Millisecond

// Restored is the state read back from disk at startup.
type Restored struct {
	Settings    schema.Settings
	HasSettings bool
	Draft       string
	HasDraft    bool
}

// Prefs keeps the settings and draft slots in sync with the session.
type Prefs struct {
	store    *Store
	settings *Debounced
	draft    *Debounced
}

// NewPrefs wires the two slots. Settings use settingsDelay (0 writes immediately)
// and the draft uses draftDelay.
func NewPrefs(store *Store, settingsDelay, draftDelay time.Duration) *Prefs {
	return &Prefs{
		store:    store,
		settings: store.Debounced(SlotSettings, settingsDelay),
		draft:    store.Debounced(SlotDraft, draftDelay),
	}
}

// Restore loads both slots. A corrupt slot is reported but does not prevent
// the other one from loading.
func (p *Prefs) Restore() (Restored, error) {
	out := Restored{Settings: schema.DefaultSettings()}
	var errs []error
	var settings schema.Settings
	ok, err := p.store.Load(SlotSettings, &settings)
	if err != nil {
		errs = append(errs, err)
	} else if ok {
		out.Settings = settings
		out.HasSettings = true
	}
	var draft string
	ok, err = p.store.Load(SlotDraft, &draft)
	if err != nil {
		errs = append(errs, err)
	} else if ok {
		out.Draft = draft
		out.HasDraft = true
	}
	return out, errors.Join(errs...)
}

// SaveSettings persists the preferences.
func (p *Prefs) SaveSettings(settings schema.Settings) {
	p.settings.Put(settings)
}

// SaveDraft persists the program text after the debounce delay.
func (p *Prefs) SaveDraft(text string) {
	p.draft.Put(text)
}

// Flush writes any pending values.
func (p *Prefs) Flush() error {
	return errors.Join(p.settings.Flush(), p.draft.Flush())
}
