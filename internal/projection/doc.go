// Package projection turns a widget's fetched document into what its
// display mode shows: labelled card values, a searchable and sortable
// table, or numeric chart series.
//
// Projections are pure functions of a widget snapshot. Selected field
// labels may carry a type annotation such as "price (number)"; it is
// stripped before the path is resolved.
package projection
