// Package domain holds the inventory engine's entities and the pure rules
// that govern them: lot and branch-stock arithmetic, FEFO allocation
// planning, expiry classification and the closed transition tables of the
// goods receipt, supplier return and branch transfer workflows.
//
// Nothing here touches storage. Callers load and lock rows, apply these
// rules, and persist the result inside one transaction.
package domain
