// Package refcache keeps the externally-maintained reference documents fresh
// and compiles them into a reusable instruction block for scoring calls.
// Everything lives in memory and is rebuilt from the document store on
// process start.
package refcache

import (
	"context"

	"github.com/talentops/cdd-analyzer/internal/lark"
)

// DocName identifies one of the three reference documents.
type DocName string

const (
	// DocRubric defines how a candidate is pre-scored.
	DocRubric DocName = "rubric"
	// DocPaperPolicy defines how an associated research paper is evaluated.
	DocPaperPolicy DocName = "paperPolicy"
	// DocTagCatalog maps roles to matching criteria and contacts.
	DocTagCatalog DocName = "tagCatalog"
)

// DocNames lists the reference documents in their refresh order.
var DocNames = []DocName{DocRubric, DocPaperPolicy, DocTagCatalog}

// Fetcher reads credentials and documents from the external document store.
type Fetcher interface {
	AppAccessToken(ctx context.Context) (*lark.Token, error)
	DocContent(ctx context.Context, docToken, accessToken string) (string, error)
}
