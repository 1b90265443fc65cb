// Package alert defines the core types shared across the catalog-alerts
// subsystems: subscriptions, catalogs, match results, the link cache, and the
// collaborator interfaces the poll cycle depends on.
package alert
