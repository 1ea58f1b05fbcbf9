package transformer

import (
	"go.uber.org/zap"

	"redcapetl/internal/table"
)

// ResolveColumns reconciles the columns a transform was asked to touch with
// the columns the table actually has:
//
//   - nothing requested: use defaults and warn;
//   - no requested column exists: use defaults and warn;
//   - some requested columns are missing: keep the existing ones, in request
//     order, and warn with the missing names;
//   - otherwise: the request as given.
func ResolveColumns(env Env, k Kind, t *table.Table, requested, defaults []string) []string {
	log := env.Log(k)
	req := dedupe(requested)
	if len(req) == 0 {
		log.Warn("columns parameter is empty; using transform defaults",
			zap.Strings("defaults", defaults))
		return defaults
	}
	var present, missing []string
	for _, c := range req {
		if t.Has(c) {
			present = append(present, c)
		} else {
			missing = append(missing, c)
		}
	}
	switch {
	case len(present) == 0:
		log.Warn("none of the requested columns exist; using transform defaults",
			zap.Strings("requested", req), zap.Strings("defaults", defaults))
		return defaults
	case len(missing) > 0:
		log.Warn("some requested columns do not exist; continuing with the rest",
			zap.Strings("missing", missing), zap.Strings("columns", present))
		return present
	}
	return req
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
