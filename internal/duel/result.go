package duel

// Winner picks the higher score, then fewer strikes. A full tie yields "".
func Winner(rows map[string]Progress) string {
	best, tied := "", false
	var top Progress
	for user, p := range rows {
		switch {
		case best == "" || p.Score > top.Score || (p.Score == top.Score && p.Strikes < top.Strikes):
			best, top, tied = user, p, false
		case p.Score == top.Score && p.Strikes == top.Strikes:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return best
}
