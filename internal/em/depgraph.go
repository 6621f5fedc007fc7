package em

import "github.com/ecucore/coreem/internal/logging"

// ComputeStartOrder returns the app ids that should be spawned, in
// dependency order, restricted to apps with StartOnBoot set. An edge
// d -> a exists when a declares d as a dependency and d is also
// start_on_boot; self-dependencies and dependencies on unknown or
// non-boot apps are logged and ignored. Ties among ready apps break in
// manifest order. On cycle detection, the manifest-file order of the
// boot set is returned unchanged instead.
func ComputeStartOrder(apps []AppConfig) []string {
	log := logging.For("em.depgraph")

	var bootOrder []string
	bootSet := make(map[string]bool)
	byID := make(map[string]AppConfig)
	for _, a := range apps {
		byID[a.AppID] = a
		if a.StartOnBoot {
			bootOrder = append(bootOrder, a.AppID)
			bootSet[a.AppID] = true
		}
	}

	indegree := make(map[string]int, len(bootOrder))
	successors := make(map[string][]string)
	for _, id := range bootOrder {
		indegree[id] = 0
	}
	for _, id := range bootOrder {
		for _, dep := range byID[id].Dependencies {
			if dep == id {
				log.Warn().Str("app", id).Msg("ignoring self-dependency")
				continue
			}
			if !bootSet[dep] {
				log.Warn().Str("app", id).Str("dependency", dep).Msg("ignoring dependency on an unknown or non-boot app")
				continue
			}
			successors[dep] = append(successors[dep], id)
			indegree[id]++
		}
	}

	processed := make(map[string]bool, len(bootOrder))
	var order []string
	for len(order) < len(bootOrder) {
		progressed := false
		for _, id := range bootOrder {
			if processed[id] || indegree[id] != 0 {
				continue
			}
			order = append(order, id)
			processed[id] = true
			progressed = true
			for _, next := range successors[id] {
				indegree[next]--
			}
		}
		if !progressed {
			log.Warn().Msg("dependency cycle detected; falling back to manifest order")
			return bootOrder
		}
	}
	return order
}
