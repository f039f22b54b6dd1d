// Package login provides password login, persistent "remember me" sessions,
// anti-CSRF action nonces, account activation links and self-service
// registration for a page based site.
//
// Components:
//   - NonceService issues stateless, action bound tokens that expire after a
//     configurable window. Every state changing form posts one.
//   - RememberMe manages series/token pairs. Tokens are single use, rotate on
//     every passive login, and a stale token for a known series revokes the
//     series (theft).
//   - SessionAuthenticator owns the session state machine: Anonymous,
//     AuthenticatedActive, AuthenticatedRemembered and Denied.
//   - ActivationService issues and redeems activation tokens that move an
//     account from disabled to enabled.
//   - AuthorizationGate checks page access rules against user capabilities.
//   - RegistrationWorkflow validates and persists new accounts, then hands
//     off to activation or login.
//   - UserLifecycle enables and disables accounts outside of activation.
//
// Storage goes through CredentialStore and RememberMeRepository. The
// repository package ships Bun backed implementations and embedded SQL
// migrations.
//
// Activity sinks:
//   - ActivitySink is a best effort audit emitter. Components record login,
//     logout, passive login, theft, activation and registration events. The
//     metrics package exposes a Prometheus backed sink.
package login
