// Package changes computes the change report for a turn. A repository with
// history is diffed through git; otherwise a text snapshot taken before the
// turn is compared to the files afterwards with a prefix/suffix trim.
package changes
