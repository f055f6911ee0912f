package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/pepperpark/imapmover/internal/syncer"
)

// plainProgress renders a syncer.Progress as a line-oriented progress bar.
type plainProgress struct {
	w       io.Writer
	bar     *progressbar.ProgressBar
	desc    string
	postfix string
}

func plainFactory(w io.Writer) syncer.ProgressFactory {
	return func(desc string) syncer.Progress {
		bar := progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionShowBytes(desc == syncer.MessageDataDescription),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		return &plainProgress{w: w, bar: bar, desc: desc}
	}
}

func (p *plainProgress) SetDescription(desc string) {
	p.desc = desc
	p.postfix = ""
	p.bar.Describe(desc)
}

func (p *plainProgress) Reset(total int64) {
	if total <= 0 {
		total = -1
	}
	p.bar.Reset()
	p.bar.ChangeMax64(total)
}

func (p *plainProgress) Update(n int64) { _ = p.bar.Add64(n) }

func (p *plainProgress) SetPostfix(postfix string) {
	p.postfix = postfix
	p.bar.Describe(fmt.Sprintf("%s [%s]", p.desc, postfix))
}

func (p *plainProgress) Close() error {
	if err := p.bar.Finish(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(p.w)
	return err
}
