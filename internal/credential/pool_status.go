package credential

// Status returns a snapshot of the roster. It never mutates the pool.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := PoolStatus{
		Total:        len(p.roster),
		CurrentIndex: p.cursor,
		Resets:       p.resets,
		Credentials:  make([]CredentialStatus, 0, len(p.roster)),
	}
	for i, c := range p.roster {
		if c.Exhausted {
			st.Exhausted++
		} else {
			st.Available++
		}
		st.Credentials = append(st.Credentials, c.snapshot(i, i == p.cursor))
	}
	return st
}

// HasAvailable reports whether any slot is not exhausted.
func (p *Pool) HasAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.roster {
		if !c.Exhausted {
			return true
		}
	}
	return false
}

// UsageStats aggregates usage and error totals across the roster.
func (p *Pool) UsageStats() UsageStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out UsageStats
	out.ResetCount = p.resets
	n := len(p.roster)
	if n == 0 {
		return out
	}

	most, least := 0, 0
	for i, c := range p.roster {
		out.TotalUsage += c.UsageCount
		out.TotalErrors += c.ErrorCount
		if c.UsageCount > p.roster[most].UsageCount {
			most = i
		}
		if c.UsageCount < p.roster[least].UsageCount {
			least = i
		}
	}
	out.AverageUsage = float64(out.TotalUsage) / float64(n)
	out.AverageErrors = float64(out.TotalErrors) / float64(n)
	out.MostUsed = p.roster[most].snapshot(most, most == p.cursor)
	out.LeastUsed = p.roster[least].snapshot(least, least == p.cursor)
	out.ExhaustedCurrent = p.roster[p.cursor].Exhausted
	return out
}

// CurrentInfo describes the slot under the cursor, including remaining headroom.
func (p *Pool) CurrentInfo() (CurrentInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.roster) == 0 {
		return CurrentInfo{}, false
	}
	c := p.roster[p.cursor]
	snap := c.snapshot(p.cursor, true)
	return CurrentInfo{
		Index:           p.cursor,
		UsageCount:      c.UsageCount,
		ErrorCount:      c.ErrorCount,
		Exhausted:       c.Exhausted,
		LastUsed:        snap.LastUsed,
		RemainingUsage:  max(0, p.maxUsage-c.UsageCount),
		RemainingErrors: max(0, p.maxErrors-c.ErrorCount),
	}, true
}
