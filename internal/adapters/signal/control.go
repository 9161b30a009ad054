package signal

func (ctl *Controller) handlePing(c *wsSignalConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{"pong"})
}
