package vardis

import "github.com/dcp-vardis/dcp-vardis-go/internal/wire"

// ApplyPayload parses a received VD payload into instruction containers
// and applies every record in the canonical order Creates → Deletes →
// Updates → Summaries → ReqUpdates → ReqCreates (§4.5). Each applyXxx
// call takes Store.mu for just that one record, not for the whole
// payload, so unrelated RTDB readers are never blocked for the parse
// of a large beacon.
func (s *Store) ApplyPayload(raw []byte) {
	d := wire.NewDecoder(raw)

	var creates []wire.VarCreate
	var deletes []wire.VarDelete
	var updates []wire.VarUpdate
	var summaries []wire.VarSummary
	var reqUpdates []wire.VarReqUpdate
	var reqCreates []wire.VarReqCreate

	for d.Remaining() > 0 {
		header, err := wire.DecodeICHeader(d)
		if err != nil {
			return // unknown ICKind or truncated header: stop parsing this payload
		}
		for i := 0; i < int(header.Count); i++ {
			switch header.Kind {
			case wire.ICCreates:
				rec, err := wire.DecodeVarCreate(d)
				if err != nil {
					return
				}
				creates = append(creates, rec)
			case wire.ICDeletes:
				rec, err := wire.DecodeVarDelete(d)
				if err != nil {
					return
				}
				deletes = append(deletes, rec)
			case wire.ICUpdates:
				rec, err := wire.DecodeVarUpdate(d)
				if err != nil {
					return
				}
				updates = append(updates, rec)
			case wire.ICSummaries:
				rec, err := wire.DecodeVarSummary(d)
				if err != nil {
					return
				}
				summaries = append(summaries, rec)
			case wire.ICReqUpdates:
				rec, err := wire.DecodeVarReqUpdate(d)
				if err != nil {
					return
				}
				reqUpdates = append(reqUpdates, rec)
			case wire.ICReqCreates:
				rec, err := wire.DecodeVarReqCreate(d)
				if err != nil {
					return
				}
				reqCreates = append(reqCreates, rec)
			}
		}
	}

	for _, c := range creates {
		s.applyCreate(c)
	}
	for _, del := range deletes {
		s.applyDelete(del)
	}
	for _, u := range updates {
		if s.dupCache != nil && s.dupCache.Seen(u.VarId, u.Seqno) {
			continue
		}
		s.applyUpdate(u)
	}
	for _, sm := range summaries {
		s.applySummary(sm)
	}
	for _, r := range reqUpdates {
		s.applyReqUpdate(r)
	}
	for _, r := range reqCreates {
		s.applyReqCreate(r)
	}
}
