package pricing

import "github.com/rotisserie/eris"

// ErrUnconfigured indicates the marketplace client is missing, usually
// because no API credentials were provided.
var ErrUnconfigured = eris.New("pricing service unconfigured")
