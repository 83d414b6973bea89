package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codenerd/internal/logging"
)

// buildContextExcerpt queries the knowledge-graph capability for the
// target names in req and formats whatever it finds into the
// surrounding-context excerpt spec.md §3 folds into the Condition. A
// nil graph client, an empty graph, or any lookup failure all degrade
// to "" - the core then proceeds on the instruction alone, per spec.md
// §6's "skips dependency enrichment and proceeds with direct-file
// context only".
func (o *Orchestrator) buildContextExcerpt(ctx context.Context, req Request) string {
	if o.graph == nil {
		return ""
	}

	var sb strings.Builder
	if file, err := o.graph.GetFileByPath(ctx, req.FilePath); err == nil && file != nil {
		sb.WriteString(fmt.Sprintf("file %s: %s\n", req.FilePath, formatProperties(file.Properties)))
	}

	for _, name := range req.TargetNames {
		deps, err := o.graph.GetDependencies(ctx, name)
		if err != nil || len(deps) == 0 {
			continue
		}
		ids := make([]string, len(deps))
		for i, d := range deps {
			ids[i] = d.ID
		}
		sb.WriteString(fmt.Sprintf("dependencies of %s: %s\n", name, strings.Join(ids, ", ")))
	}

	excerpt := strings.TrimSpace(sb.String())
	if excerpt == "" {
		return ""
	}
	logging.Orchestrator("context excerpt for %s drew on %d target(s)", req.FilePath, len(req.TargetNames))
	return "Surrounding context:\n" + excerpt
}

// formatProperties renders a node's opaque property bag deterministically
// (sorted keys), since map iteration order would otherwise make the
// Condition - and therefore the ledger's recorded provenance - vary
// run to run for the same graph response.
func formatProperties(props map[string]interface{}) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, props[k])
	}
	return strings.Join(parts, ", ")
}
