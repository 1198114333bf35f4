// Package core holds the transcript intake domain model, configuration,
// error taxonomy and the shared retry policy. Adapters depend on core; core
// must not depend on transport, storage or provider adapters.
package core
