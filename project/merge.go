package project

// Merge combines two projects into a new in-memory project without
// touching either input. Experiments unique to one side are kept as-is.
// When both sides carry an experiment with the same slug, the copy with
// the later last-updated timestamp wins; on a tie the later creation
// timestamp wins, and base wins an exact tie. The result keeps base's
// experiment order, with other-only experiments appended in other's
// order, and inherits base's location, mode and author.
func Merge(base, other *Project) *Project {
	merged := &Project{
		location: base.location,
		scheme:   base.scheme,
		path:     base.path,
		dir:      base.dir,
		mode:     base.mode,
		author:   base.author,
		backend:  base.backend,
		logger:   base.logger,
		stats:    base.stats,
		catalog:  base.catalog,
	}

	fromOther := make(map[string]*Experiment, len(other.experiments))
	for _, exp := range other.experiments {
		fromOther[exp.Slug] = exp
	}

	taken := make(map[string]bool, len(base.experiments))
	for _, exp := range base.experiments {
		taken[exp.Slug] = true
		if rival, ok := fromOther[exp.Slug]; ok && rival.newer(exp) {
			merged.experiments = append(merged.experiments, rival)
			continue
		}
		merged.experiments = append(merged.experiments, exp)
	}
	for _, exp := range other.experiments {
		if !taken[exp.Slug] {
			merged.experiments = append(merged.experiments, exp)
		}
	}

	return merged
}
