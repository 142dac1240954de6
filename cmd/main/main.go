package main

import (
	"flag"

	"sshmanager/cmd/transfer"
	"sshmanager/pkg/utils"
)

func main() {
	uploads := flag.String("upload", "", "Comma separated local files to upload")
	downloads := flag.String("download", "", "Comma separated remote files to download")
	remoteDir := flag.String("remote-dir", "", "Remote directory uploads are placed in")
	localDir := flag.String("local-dir", "", "Local directory downloads are placed in")
	onConflict := flag.String("on-conflict", "", "Conflict policy: ask, overwrite, skip, resume or keep-both")
	watch := flag.Bool("watch", false, "Upload new files from the configured watch directory")

	flag.Parse()

	transfer.Run(transfer.Options{
		Uploads:    utils.SplitList(*uploads),
		Downloads:  utils.SplitList(*downloads),
		RemoteDir:  *remoteDir,
		LocalDir:   *localDir,
		OnConflict: *onConflict,
		Watch:      *watch,
	})
}
