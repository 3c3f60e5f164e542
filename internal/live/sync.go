package live

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/phonelog/liveview/internal/page"
)

// TransitionSuppression is how long rehydrated panels keep transitions off.
const TransitionSuppression = 500 * time.Millisecond

// Snapshot holds the page state that must survive a content replacement.
type Snapshot struct {
	Panels []string
}

// Capture records which panels with the given id prefix are expanded.
func Capture(doc *page.Document, prefix string) Snapshot {
	return Snapshot{Panels: doc.ExpandedPanels(prefix)}
}

// Synchronizer replaces the content region with pushed fragments.
type Synchronizer struct {
	machine *Machine
	doc     *page.Document
	prefix  string
	log     zerolog.Logger

	// replaces counts content replacements; a restore scheduled by an
	// earlier one is skipped.
	replaces uint64
}

// NewSynchronizer returns a synchronizer that records updates on m and
// renders into doc. Timers use m's clock and dispatcher.
func NewSynchronizer(m *Machine, doc *page.Document, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		machine: m,
		doc:     doc,
		prefix:  page.PanelPrefix,
		log:     log.With().Str("component", "sync").Logger(),
	}
}

// Replace swaps the content region for html, keeps previously expanded
// panels open and runs the page pipeline. ack, if non-nil, is called last.
func (s *Synchronizer) Replace(html string, ack func()) {
	s.machine.Apply(Event{Kind: EventContentReplaced})
	s.replace(html)
	if ack != nil {
		ack()
	}
}

func (s *Synchronizer) replace(html string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("replace content failed")
		}
	}()

	s.replaces++
	s.doc.RemoveDynamicTooltips()
	snap := Capture(s.doc, s.prefix)
	if !s.doc.ReplaceContent(html) {
		s.log.Debug().Msg("page has no content region")
	}
	s.restore(snap)
	s.doc.FixContent()
}

func (s *Synchronizer) restore(snap Snapshot) {
	doc, gen := s.doc, s.replaces
	for _, id := range snap.Panels {
		prev, ok := doc.ExpandPanel(id)
		if !ok {
			continue
		}
		s.machine.clock.AfterFunc(TransitionSuppression, func() {
			s.machine.dispatch(func() {
				if gen != s.replaces {
					return
				}
				doc.RestoreTransition(id, prev)
			})
		})
	}
}
