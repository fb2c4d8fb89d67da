// Package discovery advertises and finds SmartKey registries over mDNS.
//
// A registry server announces itself as "_smartkey._tcp" in the "local"
// domain. The TXT record carries the registry address ("reg") and the major
// API version ("ver"), so that devices and wallets on the local network can
// find the registry they were provisioned for without configuration.
package discovery
