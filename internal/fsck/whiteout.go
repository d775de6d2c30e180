package fsck

// checkWhiteout removes whiteouts that hide nothing. A whiteout is orphaned
// when it lives in the bottom lower layer, or when nothing beneath it is
// found or the entry found beneath is itself a whiteout.
func (c *Checker) checkWhiteout(sc *scanCtx, e *Entry) error {
	if !e.Stat.IsWhiteout() {
		return nil
	}
	sc.result.Whiteouts++

	orphan := c.set.IsBottom(sc.layer)
	detail := "bottom layer"
	if !orphan {
		res, err := c.LookupLower(sc.layer, e.Path)
		if err != nil {
			return err
		}
		switch {
		case !res.Found:
			orphan, detail = true, "nothing to hide"
		case res.Stat.IsWhiteout():
			orphan, detail = true, "hides another whiteout"
		}
	}
	if !orphan {
		return nil
	}

	sc.result.InvalidWhiteouts++
	if !sc.ask("Orphan whiteout", e.Path, "Remove", true) {
		return c.record(sc, KindOrphanWhiteout, e.Path, detail, false)
	}
	if err := sc.layer.FS.Unlink(e.Path); err != nil {
		return scanErr(ErrCodeRepair, sc.layer, "unlink", e.Path, err)
	}
	sc.result.Whiteouts--
	sc.result.InvalidWhiteouts--
	c.modified = true
	return c.record(sc, KindOrphanWhiteout, e.Path, detail, true)
}
