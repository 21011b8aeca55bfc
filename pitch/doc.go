// Package pitch estimates fundamental frequency contours on the hop grid of
// the mel front end and derives voiced masks from them.
package pitch
