// Package roster holds the known identities and their reference embeddings.
package roster

// Identity is a known person with one or more reference embeddings.
// Sources lists the reference image paths in the same order as Embeddings.
type Identity struct {
	Name       string
	Embeddings [][]float32
	Sources    []string
}

// Roster is an ordered, read-only collection of identities.
// Identity names are unique; order is first-occurrence order.
type Roster struct {
	model      string
	identities []Identity
}

// New builds a roster from identities. Identities sharing a name are merged
// into the first one in order, and identities without embeddings are dropped.
// Embedding slices are copied so the caller may reuse its buffers.
func New(model string, identities ...Identity) *Roster {
	r := &Roster{model: model}
	byName := make(map[string]int, len(identities))

	for _, id := range identities {
		for i, emb := range id.Embeddings {
			if len(emb) == 0 {
				continue
			}
			source := ""
			if i < len(id.Sources) {
				source = id.Sources[i]
			}
			r.add(byName, id.Name, emb, source)
		}
	}
	return r
}

func (r *Roster) add(byName map[string]int, name string, emb []float32, source string) {
	cp := make([]float32, len(emb))
	copy(cp, emb)

	idx, ok := byName[name]
	if !ok {
		idx = len(r.identities)
		byName[name] = idx
		r.identities = append(r.identities, Identity{Name: name})
	}
	r.identities[idx].Embeddings = append(r.identities[idx].Embeddings, cp)
	r.identities[idx].Sources = append(r.identities[idx].Sources, source)
}

// Identities returns the identities in roster order. The slice must not be modified.
func (r *Roster) Identities() []Identity {
	if r == nil {
		return nil
	}
	return r.identities
}

// Len returns the number of identities.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.identities)
}

// References returns the total number of reference embeddings.
func (r *Roster) References() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, id := range r.identities {
		n += len(id.Embeddings)
	}
	return n
}

// Names returns identity names in roster order.
func (r *Roster) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.identities))
	for i, id := range r.identities {
		names[i] = id.Name
	}
	return names
}

// Model returns the name of the embedding model the roster was built with.
func (r *Roster) Model() string {
	if r == nil {
		return ""
	}
	return r.model
}
