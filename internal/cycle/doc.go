// Package cycle forecasts the next period and fertile window from a user's
// logged cycle entries and decides who may see those forecasts.
//
// Everything here is a pure function of its arguments. Forecasts are derived
// on every read and never stored, so a new or corrected entry is reflected
// immediately.
package cycle
