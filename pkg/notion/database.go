package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages from a Notion database, handling pagination.
// Rate limiting is enforced by the Client (3 req/s by default).
// Uses prefetch: starts fetching page N+1 in a goroutine while processing
// page N.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "notion: query all")
	}

	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error

		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, req)
		}

		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}

		nextReq := &notionapi.DatabaseQueryRequest{
			StartCursor: resp.NextCursor,
		}
		if filter != nil {
			nextReq.Filter = filter.Filter
			nextReq.Sorts = filter.Sorts
			nextReq.PageSize = filter.PageSize
		}

		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, nextReq)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

// TextEquals is an exact-match condition on a text-like property. Type is
// the property's config type ("title", "rich_text", "email",
// "phone_number"); empty means rich text.
type TextEquals struct {
	Property string
	Type     string
	Value    string
}

// TextPropertyFilter adds the title, email and phone number conditions that
// notionapi.PropertyFilter does not model. The embedded filter supplies the
// property name and satisfies notionapi.Filter.
type TextPropertyFilter struct {
	notionapi.PropertyFilter
	Title       *notionapi.TextFilterCondition `json:"title,omitempty"`
	Email       *notionapi.TextFilterCondition `json:"email,omitempty"`
	PhoneNumber *notionapi.TextFilterCondition `json:"phone_number,omitempty"`
}

// equalsFilter builds the condition for one property. Notion rejects a
// rich_text condition on email, phone number and title properties.
func equalsFilter(c TextEquals) notionapi.Filter {
	cond := &notionapi.TextFilterCondition{Equals: c.Value}
	base := notionapi.PropertyFilter{Property: c.Property}
	switch notionapi.PropertyConfigType(c.Type) {
	case notionapi.PropertyConfigTypeTitle:
		return TextPropertyFilter{PropertyFilter: base, Title: cond}
	case notionapi.PropertyConfigTypeEmail:
		return TextPropertyFilter{PropertyFilter: base, Email: cond}
	case notionapi.PropertyConfigTypePhoneNumber:
		return TextPropertyFilter{PropertyFilter: base, PhoneNumber: cond}
	default:
		base.RichText = cond
		return base
	}
}

// TextFilter builds a query filter requiring every condition. It returns nil
// for no conditions.
func TextFilter(conds ...TextEquals) notionapi.Filter {
	filters := make([]notionapi.Filter, 0, len(conds))
	for _, c := range conds {
		filters = append(filters, equalsFilter(c))
	}
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return notionapi.AndCompoundFilter(filters)
	}
}

// QueryByText fetches every page matching all conditions.
func QueryByText(ctx context.Context, c Client, dbID string, conds ...TextEquals) ([]notionapi.Page, error) {
	pages, err := QueryAll(ctx, c, dbID, &notionapi.DatabaseQueryRequest{Filter: TextFilter(conds...)})
	if err != nil {
		return nil, eris.Wrap(err, "notion: query by text")
	}
	return pages, nil
}
