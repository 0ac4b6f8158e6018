// Package service contains the Domain Services: one per entity kind, each
// wrapping a generic store.Repository with the kind's validation rules,
// reference checks and deletion policy.
//
// Services never bypass their repository and never talk to another kind's
// repository directly; cross-entity checks go through the other service.
// The set of kinds is declared once in Registrations and wired by NewRegistry.
package service
