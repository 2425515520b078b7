package dnsval

import (
	"context"
	"fmt"

	"github.com/hlandau/dnsval/dnsmsg"
)

// Transport sends a single encoded DNS message to an upstream server and
// returns the decoded response. Implementations may pipeline multiple
// concurrent Exchange calls over one underlying connection; callers must
// not assume otherwise but may rely on each call being independently
// cancellable via ctx.
type Transport interface {
	Exchange(ctx context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error)
	fmt.Stringer
}
