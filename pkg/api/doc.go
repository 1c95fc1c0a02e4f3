// Package api hosts the HTTP boundary: the bot webhook that feeds files and
// human events into the orchestrator, the case browser for operators and
// auditors, and the internal tool endpoints.
//
// The surfaces authenticate differently: webhook and browser take JWT
// bearer tokens with role claims, the tool endpoints take a subscription
// key. Every request carries an x-correlation-id equal to the case id and
// every response echoes it.
package api
