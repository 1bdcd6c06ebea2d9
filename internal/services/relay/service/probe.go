package service

import (
	"context"

	dom "otprelay/internal/services/relay/domain"
)

// Probe runs a small panel fetch and a getMe; nothing is sent and the ledger is untouched
func (s *Svc) Probe(ctx context.Context) dom.ProbeReport {
	var pr dom.ProbeReport
	if s.panelProbe != nil {
		res, err := s.panelProbe.Probe(ctx)
		pr.PanelOutcome = string(res.Outcome)
		pr.PanelRows = len(res.Rows)
		if err != nil {
			pr.PanelErr = err.Error()
		}
	}
	if s.botProbe != nil {
		user, err := s.botProbe.Probe(ctx)
		pr.BotUser = user
		if err != nil {
			pr.BotErr = err.Error()
		}
	}
	return pr
}
