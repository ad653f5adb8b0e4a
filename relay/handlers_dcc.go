package relay

import (
	"net"
	"strconv"
	"time"
)

// handleDCCFrame implements C9: DCC negotiation is carried as a bare
// "DCC <subcmd> <params>" frame addressed, like PRIVMSG, at a target
// nickname in Params[0]. The relay forwards setup frames and is never
// in the data path once a transfer starts.
func (c *Client) handleDCCFrame(f *Frame) *RelayError {
	if len(f.Params) < 1 {
		return errNeedMoreParams("DCC")
	}
	dcc, err := ParseDCCFrame("DCC " + joinSpace(f.Params))
	if err != nil {
		return errf(KindDCC, "211", "DCC", err.Error())
	}
	if len(dcc.Parameters) < 1 {
		return errNeedMoreParams("DCC")
	}
	target := dcc.Parameters[0]
	nick := c.Nickname()
	dcc.Prefix = nick

	switch dcc.Command {
	case DCCChat:
		return c.routeDCC(target, dcc)
	case DCCSend:
		if len(dcc.Parameters) >= 3 {
			filename := dcc.Parameters[1]
			size, _ := strconv.ParseInt(dcc.Parameters[2], 10, 64)
			if _, err := c.server.transfers.Start(nick, filename, "", size); err != nil {
				return errf(KindDCC, "210", filename, "transfer already in progress")
			}
		}
		return c.routeDCC(target, dcc)
	case DCCAccept:
		return c.routeDCC(target, dcc)
	case DCCResume:
		// Grammar is fixed as "RESUME A filename position ip port": A
		// is always the initiator who holds the file, regardless of
		// which side sent this frame.
		if len(dcc.Parameters) < 3 {
			return errNeedMoreParams("DCC RESUME")
		}
		filename := dcc.Parameters[1]
		offset, _ := strconv.ParseInt(dcc.Parameters[2], 10, 64)
		if err := c.server.transfers.Resume(target, filename, offset); err == nil {
			return nil
		}
		return c.routeDCC(target, dcc)
	case DCCStop:
		// Same fixed grammar as RESUME: target here is always A.
		if len(dcc.Parameters) < 2 {
			return errNeedMoreParams("DCC STOP")
		}
		filename := dcc.Parameters[1]
		if err := c.server.transfers.Stop(target, filename); err == nil {
			return nil
		}
		return c.routeDCC(target, dcc)
	case DCCClose:
		if len(dcc.Parameters) >= 2 {
			c.server.transfers.Close(target, dcc.Parameters[1])
		}
		return c.routeDCC(target, dcc)
	default:
		return errf(KindDCC, "211", "DCC", "invalid command")
	}
}

// routeDCC delivers a DCC frame to a local peer, or forwards it toward
// the peer's home server. A local peer that is known but not currently
// connected gets a best-effort CLOSE reply dialed directly to the
// advertised endpoint instead of silent failure (§9(d)).
func (c *Client) routeDCC(target string, dcc *DCCFrame) *RelayError {
	if peer, ok := c.server.session.LocalSocket(target); ok {
		peer.SendRaw(dcc.Serialize())
		return nil
	}
	if _, known := c.server.session.GetClient(target); known {
		if ip, port, ok := dcc.advertisedEndpoint(); ok {
			notice := (&DCCFrame{Command: DCCClose, Parameters: []string{target, "NotConnected"}}).Serialize()
			go dialPeerBestEffort(ip, port, notice)
		}
		return nil
	}
	if c.server.network.IsRemoteClient(target) {
		c.server.federation.ForwardToRemoteUser(target, &Frame{Command: "DCC", Params: append([]string{target}, dcc.Serialize())})
		return nil
	}
	return dccRoutingError(dcc.Command, target)
}

func joinSpace(params []string) string {
	out := ""
	for i, p := range params {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// dialPeerBestEffort is used by an initiating client's relay-side
// fallback when a SEND/CHAT target is known to be offline: it dials
// the advertised endpoint once and writes msg, rather than retrying,
// per the open-question decision in SPEC_FULL.md §9(d).
func dialPeerBestEffort(ip string, port int, msg string) {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, strconv.Itoa(port)), 2*time.Second)
	if err != nil {
		return
	}
	defer conn.Close()
	_, _ = conn.Write([]byte(msg + "\r\n"))
}
