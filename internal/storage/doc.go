// Package storage persists the delivery engine's durable state:
//   - The per-campaign sent-recipient ledger (the only state the scheduler
//     relies on across restarts)
//   - An append-only audit trail of delivery outcomes
//   - Alert dedup keys (so restarts do not re-alert)
package storage
