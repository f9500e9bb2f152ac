package identity

import (
	"reflect"
	"strings"

	"github.com/sells-group/recovery-sync/internal/model"
)

// Group is a set of leads sharing one identity key, in input order.
type Group struct {
	Key   Key
	Leads []model.Lead
}

// GroupLeads partitions leads by identity key. Groups are returned in order of
// each key's first appearance.
func GroupLeads(leads []model.Lead, byProduct bool) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, l := range leads {
		k := KeyOf(l, byProduct)
		i, ok := index[k.String()]
		if !ok {
			i = len(groups)
			index[k.String()] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Leads = append(groups[i].Leads, l)
	}
	return groups
}

// Divergence lists descriptive fields whose values disagree across a group.
// A non-empty Divergence means the merged record depends on input order.
type Divergence []string

// MergeBatch collapses a group into one lead: the union of all tags, the
// maximum of each money field, and every other field from the last lead.
func MergeBatch(g Group) (model.Lead, Divergence) {
	if len(g.Leads) == 0 {
		return model.Lead{}, nil
	}
	merged := g.Leads[len(g.Leads)-1]
	tags := []string{}
	gross, net := g.Leads[0].Gross, g.Leads[0].Net
	for _, l := range g.Leads {
		tags = model.UnionTags(tags, l.ActionTags)
		gross = max(gross, l.Gross)
		net = max(net, l.Net)
	}
	merged.ActionTags = tags
	merged.Gross = gross
	merged.Net = net
	return merged, divergence(g.Leads)
}

func divergence(leads []model.Lead) Divergence {
	if len(leads) < 2 {
		return nil
	}
	fields := []struct {
		name string
		get  func(model.Lead) any
	}{
		{"name", func(l model.Lead) any { return l.Name }},
		{"phone", func(l model.Lead) any { return l.Phone }},
		{"product", func(l model.Lead) any { return l.Product }},
		{"utms", func(l model.Lead) any { return l.UTMs }},
		{"external_id", func(l model.Lead) any { return l.ExternalID }},
		{"external_created_at", func(l model.Lead) any { return l.ExternalCreatedAt }},
	}
	var out Divergence
	for _, f := range fields {
		first := f.get(leads[0])
		for _, l := range leads[1:] {
			if !reflect.DeepEqual(first, f.get(l)) {
				out = append(out, f.name)
				break
			}
		}
	}
	return out
}

// MergeInto applies an incoming lead to a stored row. Tags are unioned with
// the stored tags first and money fields take the incoming value. A stored
// display name is kept; other descriptive fields are replaced only when the
// incoming value is set.
func MergeInto(existing model.LeadRow, in model.Lead) model.LeadRow {
	out := existing
	out.ActionTags = model.UnionTags(existing.ActionTags, in.ActionTags)
	out.Gross = in.Gross
	out.Net = in.Net

	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if strings.TrimSpace(existing.Name) == "" {
		setStr(&out.Name, in.Name)
	}
	setStr(&out.Product, in.Product)
	setStr(&out.Phone, in.Phone)
	setStr(&out.ExternalID, in.ExternalID)
	setStr(&out.ExternalCreatedAt, in.ExternalCreatedAt)
	setStr(&out.Origin, in.Origin)
	if !in.UTMs.Empty() {
		out.UTMs = in.UTMs
	}
	if in.Raw != nil {
		out.Raw = in.Raw
	}
	if !in.PlaceholderEmail {
		out.PlaceholderEmail = false
	}
	return out
}
