package planmodel

// SecondKind classifies what is feasible for a satellite at a given second,
// before domains are built.
type SecondKind int

const (
	// KindAccess means some RAW observation is feasible at this second.
	KindAccess SecondKind = iota
	// KindDownlink means a ground-contact window is open at this second.
	KindDownlink
	// KindGap means neither is true; the second contributes only "***".
	KindGap
)

// SecondInput is one satellite-second's raw feasibility, as assembled by
// ingest/ from the access-window and ground-contact files.
type SecondInput struct {
	Kind SecondKind
	// AccessGps maps sourceId -> ground-point ids visible from that source.
	// Only meaningful when Kind == KindAccess.
	AccessGps map[string][]int
	// GsID is the ground station in contact. Only meaningful when
	// Kind == KindDownlink.
	GsID string
}

// SatelliteInput is one satellite's per-second feasibility table.
type SatelliteInput struct {
	SatID   string
	Seconds map[int]SecondInput
}

// GpIndex maps a ground-point id to the active RAW variables whose domain
// currently offers a command covering it. Built once at startup from the
// initial domains; consulted and mutated by the rollout simulator as
// observations strip ground points from other variables' choices.
type GpIndex map[int][]Variable

// Remove deletes v from gp's entry, preserving the relative order of the
// remaining variables.
func (idx GpIndex) Remove(gp int, v Variable) {
	vars := idx[gp]
	for i, other := range vars {
		if other == v {
			idx[gp] = append(vars[:i], vars[i+1:]...)
			return
		}
	}
}

// BuildResult is the Plan Variable Builder's output: the active variable
// set in canonical chronological order, the full map (including pruned
// single-choice variables, retained for plan reassembly), and the GpIndex.
type BuildResult struct {
	Active       []Variable
	Domains      map[Variable]Domain
	Full         map[Variable]Domain
	GpIndex      GpIndex
	HorizonStart int
}

// Builder constructs plan variables and the GpIndex from per-satellite
// access and ground-contact feasibility, per spec §4.1. Satellites are
// iterated in registration order so that ties on the same second break by
// insertion order, matching the canonical chronological order the
// simulator relies on.
type Builder struct {
	Satellites      []SatelliteInput
	HorizonStart    int
	HorizonDuration int
}

// Build constructs the (variable, domain) list for every second in
// [HorizonStart, HorizonStart+HorizonDuration], for every registered
// satellite, plus the GpIndex over the resulting active RAW variables.
func (b Builder) Build() (*BuildResult, error) {
	result := &BuildResult{
		Domains:      make(map[Variable]Domain),
		Full:         make(map[Variable]Domain),
		GpIndex:      make(GpIndex),
		HorizonStart: b.HorizonStart,
	}

	last := b.HorizonStart + b.HorizonDuration
	for second := b.HorizonStart; second <= last; second++ {
		for _, sat := range b.Satellites {
			v := Variable{SatID: sat.SatID, Second: second}
			domain, err := buildDomain(sat, second)
			if err != nil {
				return nil, err
			}
			result.Full[v] = domain

			if len(domain) <= 1 {
				// Single-choice (IDL-only or gap-only): pruned from the
				// active set, kept in Full for later plan reassembly.
				continue
			}
			result.Active = append(result.Active, v)
			result.Domains[v] = domain

			if IsRaw(domain[0]) {
				gps, err := RawGps(domain[0])
				if err != nil {
					return nil, err
				}
				for _, gp := range gps {
					result.GpIndex[gp] = append(result.GpIndex[gp], v)
				}
			}
		}
	}
	return result, nil
}

func buildDomain(sat SatelliteInput, second int) (Domain, error) {
	si, ok := sat.Seconds[second]
	if !ok {
		// No feasibility entry at all for this second: synthesized gap,
		// per the gap-aware access-window ingestion behavior.
		return Domain{CmdGap}, nil
	}

	switch si.Kind {
	case KindDownlink:
		return Domain{dnlPrefix + si.GsID, CmdIdle}, nil

	case KindAccess:
		gps := flattenSources(si.AccessGps)
		if len(gps) == 0 {
			return Domain{CmdGap}, nil
		}
		return Domain{BuildRawCmd(gps), CmdIdle}, nil

	case KindGap:
		return Domain{CmdGap}, nil

	default:
		return Domain{CmdGap}, nil
	}
}

func flattenSources(bySource map[string][]int) []int {
	var all []int
	for _, gps := range bySource {
		all = append(all, gps...)
	}
	return dedupeSorted(all)
}
