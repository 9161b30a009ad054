package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
)

// handleSignalRelay forwards offer/answer/candidate frames to the
// addressed connection. The negotiation payload is opaque here: only
// the routing fields are read, and the original frame is forwarded with
// the sender stamped in. A missing target is a silent drop; the
// client-side protocol re-offers after reconnect.
func (ctl *Controller) handleSignalRelay(cid core.ConnID, c *wsSignalConn, data []byte) {
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad signal payload")
		ctl.sendError(c, "bad_payload", "malformed signaling message")
		return
	}

	to, _ := env["to"].(string)
	if to == "" {
		ctl.sendError(c, "bad_payload", "signaling message without target")
		return
	}

	env["from"] = string(cid)
	delete(env, "to")
	out, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("signal re-marshal")
		return
	}

	delivered := ctl.Orch.RelaySignal(cid, core.ConnID(to), out)
	if !delivered {
		// Not an error: the target may have just disconnected.
		log.Debug().Str("module", "signal").
			Str("from", string(cid)).
			Str("to", to).
			Msg("signal dropped")
	}
}
